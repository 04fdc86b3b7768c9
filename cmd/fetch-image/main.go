package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/openmarket/imageloader/internal/adapters/cache"
	"github.com/openmarket/imageloader/internal/adapters/fetchclient"
	"github.com/openmarket/imageloader/internal/app"
	"github.com/openmarket/imageloader/internal/domain"
	"github.com/openmarket/imageloader/internal/logging"
	"golang.org/x/sync/errgroup"
)

func main() {
	repeat := flag.Int("repeat", 1, "number of concurrent loads per url")
	timeout := flag.Duration("timeout", 10*time.Second, "timeout per upstream request")
	retryMax := flag.Int("retries", 0, "retries after the first attempt")
	parallel := flag.Int("parallel", -1, "max concurrent loads (-1 for no limit)")
	verbose := flag.Bool("v", false, "log loader activity")
	flag.Parse()

	locators := flag.Args()
	if len(locators) == 0 {
		log.Fatal("No urls provided")
	}
	if *repeat < 1 {
		log.Fatal("repeat must be at least 1")
	}
	if *parallel == 0 {
		log.Fatal("parallel must be positive or -1")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	ctx := logging.AddToContext(context.Background(), logger)

	fetcher := fetchclient.NewFetchClient(fetchclient.NewHTTPClient(*timeout, *retryMax, logger))
	loader := app.NewImageLoader(cache.NewBasicCache[domain.Image](time.Now), fetcher, time.Now)

	type result struct {
		img domain.Image
		err error
	}

	results := make([][]result, len(locators))
	var g errgroup.Group
	g.SetLimit(*parallel)
	for i, locator := range locators {
		results[i] = make([]result, *repeat)
		for j := range *repeat {
			g.Go(func() error {
				img, err := loader.Load(ctx, locator)
				results[i][j] = result{img: img, err: err}
				// Failures are reported per url below
				return nil
			})
		}
	}
	_ = g.Wait()

	failed := false
	for i, locator := range locators {
		// Loads of the same url share one outcome
		r := results[i][0]
		if r.err != nil {
			failed = true
			fmt.Printf("%s: error: %v\n", locator, r.err)
			continue
		}
		fmt.Printf("%s: %s %dx%d (%d bytes)\n", locator, r.img.Format, r.img.Width, r.img.Height, len(r.img.Data))
	}

	stats := loader.Stats()
	fmt.Printf(
		"loads: %d, hits: %d, misses: %d, coalesced: %d, fetches: %d, failures: %d\n",
		len(locators)*(*repeat),
		stats.Hits,
		stats.Misses,
		stats.Coalesced,
		stats.Fetches,
		stats.Failures,
	)

	if failed {
		os.Exit(1)
	}
}
