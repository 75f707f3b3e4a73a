package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"analytics-tag-checker/internal/analysis"
	"analytics-tag-checker/internal/config"
	"analytics-tag-checker/internal/detector"
	"analytics-tag-checker/internal/host"
	"analytics-tag-checker/internal/ioformats"
	"analytics-tag-checker/internal/metrics"
	"analytics-tag-checker/internal/mock"
	"analytics-tag-checker/internal/models"
	"analytics-tag-checker/pkg/logger"
)

var ErrEmptyURL = errors.New("empty url")

// HostFactory builds the host that inspects one URL.
type HostFactory func(mode, url string) (host.Host, error)

// Runner analyses URLs one-shot, each through its own session, with bounded
// concurrency.
type Runner struct {
	NewHost     HostFactory
	Mode        string
	Engine      *detector.Engine
	Mock        *mock.Generator
	Log         *logger.Logger
	Metrics     *metrics.Recorder
	Concurrency int
	Timeout     time.Duration
}

// FromConfig wires the runner to the hosts and limits from cfg.
func FromConfig(cfg *config.Config, log *logger.Logger, rec *metrics.Recorder) *Runner {
	client := host.NewHTTPClient(cfg.Fetch.Timeout, cfg.Fetch.DialTimeout, cfg.Fetch.SizeCap)
	gen := mock.NewGenerator(cfg.Host.MockSeed)
	return &Runner{
		NewHost: func(mode, url string) (host.Host, error) {
			switch mode {
			case config.HostHTTP:
				return host.NewHTTPHost(client, url), nil
			case config.HostChrome:
				return host.NewChromeHost(url, host.ChromeOptions{
					ExecPath: cfg.Host.ChromePath,
					Settle:   cfg.Host.ChromeWait,
					Timeout:  cfg.Fetch.Timeout + cfg.Host.ChromeWait,
					Log:      log,
				}), nil
			case config.HostMock:
				h := mock.NewHost(gen)
				h.URL = url
				return h, nil
			}
			return nil, fmt.Errorf("unknown host mode %q", mode)
		},
		Mode:        cfg.Host.Mode,
		Engine:      detector.New(),
		Mock:        gen,
		Log:         log,
		Metrics:     rec,
		Concurrency: cfg.Fetch.Concurrency,
		Timeout:     cfg.Fetch.Timeout + cfg.Host.ChromeWait + 5*time.Second,
	}
}

// Session opens a long-lived session over url using mode, or the runner's
// default mode when empty.
func (r *Runner) Session(mode, url string) (*analysis.Session, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	if mode == "" {
		mode = r.Mode
	}
	h, err := r.NewHost(mode, url)
	if err != nil {
		return nil, err
	}
	return analysis.NewSession(h, analysis.Options{
		Engine:  r.Engine,
		Mock:    r.Mock,
		Log:     r.Log,
		Metrics: r.Metrics,
	}), nil
}

// Detect analyses a single URL.
func (r *Runner) Detect(ctx context.Context, url string) (models.PageAnalysis, error) {
	s, err := r.Session("", url)
	if err != nil {
		return models.PageAnalysis{}, err
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	return s.Analyze(ctx)
}

// Stream analyses urls concurrently and hands each line to emit as soon as
// it is ready. emit may be called from several goroutines.
func (r *Runner) Stream(ctx context.Context, urls []string, emit func(int, ioformats.Line)) {
	n := r.Concurrency
	if n < 1 {
		n = 1
	}
	sem := make(chan struct{}, n)
	done := make(chan struct{}, len(urls))

	for i, u := range urls {
		i, u := i, u      // per-iteration copies (go1.22 loopvar semantics under go 1.21)
		sem <- struct{}{} // acquire
		go func() {
			defer func() { <-sem; done <- struct{}{} }()
			a, err := r.Detect(ctx, u)
			if err != nil {
				r.Log.Warnf("detect %s: %v", u, err)
				emit(i, ioformats.Line{URL: u, Error: err.Error()})
				return
			}
			emit(i, ioformats.Line{URL: u, Result: &a})
		}()
	}
	for range urls {
		<-done
	}
}

// Batch is Stream collected in input order.
func (r *Runner) Batch(ctx context.Context, urls []string) []ioformats.Line {
	out := make([]ioformats.Line, len(urls))
	r.Stream(ctx, urls, func(i int, l ioformats.Line) { out[i] = l })
	return out
}
