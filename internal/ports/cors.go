package ports

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// DomainSuffixes matches https origins on a set of domains and their subdomains
type DomainSuffixes struct {
	suffixes []string
}

func NewDomainSuffixes(suffixes ...string) (*DomainSuffixes, error) {
	normalized := make([]string, 0, len(suffixes))
	for _, suffix := range suffixes {
		if suffix == "" {
			return nil, errors.New("domain suffix should not be empty")
		}
		if strings.HasPrefix(suffix, ".") {
			return nil, fmt.Errorf("domain suffix %s should not start with a dot", suffix)
		}
		if strings.Contains(suffix, "://") {
			return nil, fmt.Errorf("domain suffix %s should not contain a scheme", suffix)
		}
		normalized = append(normalized, strings.ToLower(suffix))
	}
	return &DomainSuffixes{
		suffixes: normalized,
	}, nil
}

func (suffixes *DomainSuffixes) AnyMatch(origin string) bool {
	origin = strings.ToLower(origin)
	for _, suffix := range suffixes.suffixes {
		if originMatchesSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

func originMatchesSuffix(origin string, suffix string) bool {
	host, ok := strings.CutPrefix(origin, "https://")
	if !ok {
		return false
	}

	// https://example.com or https://*.example.com
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}

func BuildCORSMiddleware(allowedOrigins *DomainSuffixes) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			w.Header().Add("Vary", "Origin")

			if allowedOrigins.AnyMatch(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)

				if r.Method == http.MethodOptions {
					w.Header().Set("Access-Control-Allow-Methods", "GET")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}

			next(w, r)
		}
	}
}

func BuildCORSHandler(allowedOrigins *DomainSuffixes) http.HandlerFunc {
	return BuildCORSMiddleware(allowedOrigins)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
