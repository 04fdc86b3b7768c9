package domain_test

import (
	"testing"

	"github.com/openmarket/imageloader/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestLocatorHost(t *testing.T) {
	t.Parallel()

	cases := []struct {
		locator string
		host    string
		ok      bool
	}{
		{locator: "https://images.example.com/a.png", host: "images.example.com", ok: true},
		{locator: "https://IMAGES.Example.com:8443/a.png", host: "images.example.com", ok: true},
		{locator: "http://[2001:db8::1]:8080/a.png", host: "2001:db8::1", ok: true},
		{locator: "not-a-url", ok: false},
		{locator: "%zz", ok: false},
		{locator: "", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.locator, func(t *testing.T) {
			t.Parallel()

			host, ok := domain.LocatorHost(tc.locator)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.host, host)
		})
	}
}
