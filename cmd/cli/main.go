package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"analytics-tag-checker/internal/batch"
	"analytics-tag-checker/internal/config"
	"analytics-tag-checker/internal/ioformats"
	"analytics-tag-checker/internal/metrics"
	"analytics-tag-checker/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	in := flag.String("input", "", "input file (csv with 'url' column or ndjson)")
	single := flag.String("url", "", "analyse a single url")
	out := flag.String("output", "", "output NDJSON file (default stdout)")
	concurrency := flag.Int("concurrency", cfg.Fetch.Concurrency, "worker concurrency")
	chrome := flag.Bool("chrome", false, "render pages in headless chrome")
	useMock := flag.Bool("mock", false, "generate mock results instead of inspecting pages")
	debug := flag.Bool("debug", cfg.LogDebug, "debug logging")
	flag.Parse()

	if *in == "" && *single == "" {
		fmt.Fprintln(os.Stderr, "missing --input or --url")
		os.Exit(2)
	}

	var urls []string
	if *single != "" {
		urls = append(urls, *single)
	}
	if *in != "" {
		list, err := ioformats.ReadURLsFile(*in)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read input:", err)
			os.Exit(1)
		}
		urls = append(urls, list...)
	}

	switch {
	case *useMock:
		cfg.Host.Mode = config.HostMock
	case *chrome:
		cfg.Host.Mode = config.HostChrome
	}
	cfg.Fetch.Concurrency = *concurrency

	l := logger.WithDebug(*debug)
	r := batch.FromConfig(cfg, l, metrics.New())

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintln(os.Stderr, "create output:", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := r.Batch(ctx, urls)
	if err := ioformats.WriteNDJSON(w, lines); err != nil {
		fmt.Fprintln(os.Stderr, "write output:", err)
		os.Exit(1)
	}
	l.Infof("analysed %d urls (mode=%s)", len(urls), cfg.Host.Mode)
}
