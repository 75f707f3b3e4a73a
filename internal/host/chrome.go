package host

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"analytics-tag-checker/internal/gate"
	"analytics-tag-checker/internal/models"
	"analytics-tag-checker/pkg/logger"
)

const (
	outerHTMLScript       = "document.documentElement.outerHTML"
	resourceEntriesScript = `performance.getEntriesByType("resource").map(e => ({url: e.name, initiatorType: e.initiatorType}))`
)

type ChromeOptions struct {
	ExecPath string
	// Settle is how long to wait after load for tag managers to inject their scripts.
	Settle  time.Duration
	Timeout time.Duration
	Log     *logger.Logger
}

// ChromeHost renders the page in headless Chrome, then reads the live DOM and
// every request the page made while loading.
type ChromeHost struct {
	opts ChromeOptions

	mu      sync.Mutex
	url     string
	records []models.ResourceRecord
}

func NewChromeHost(rawURL string, opts ChromeOptions) *ChromeHost {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Log == nil {
		opts.Log = logger.New()
	}
	return &ChromeHost{opts: opts, url: rawURL}
}

func (h *ChromeHost) CurrentURL(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url, nil
}

func (h *ChromeHost) Navigate(ctx context.Context, rawURL string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rawURL != h.url {
		h.url = rawURL
		h.records = nil
	}
	return nil
}

func (h *ChromeHost) Markup(ctx context.Context) (string, error) {
	h.mu.Lock()
	target := strings.TrimSpace(h.url)
	h.mu.Unlock()

	if target == "" {
		return "", errors.New("empty url")
	}
	if gate.IsRestricted(target) {
		return "", fmt.Errorf("%s: %w", target, ErrAccessDenied)
	}

	allocatorOptions := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocatorOptions = append(allocatorOptions,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-first-run", true),
	)
	if p := strings.TrimSpace(h.opts.ExecPath); p != "" {
		allocatorOptions = append(allocatorOptions, chromedp.ExecPath(p))
	}

	runCtx, cancelTimeout := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancelTimeout()
	allocatorCtx, cancelAllocator := chromedp.NewExecAllocator(runCtx, allocatorOptions...)
	defer cancelAllocator()
	chromeCtx, cancelChrome := chromedp.NewContext(allocatorCtx)
	defer cancelChrome()

	var (
		recMu    sync.Mutex
		requests []models.ResourceRecord
	)
	chromedp.ListenTarget(chromeCtx, func(event any) {
		if ev, ok := event.(*network.EventRequestWillBeSent); ok && ev.Request != nil {
			recMu.Lock()
			requests = append(requests, models.ResourceRecord{URL: ev.Request.URL, InitiatorType: strings.ToLower(string(ev.Type))})
			recMu.Unlock()
		}
	})

	var (
		markup  string
		entries []models.ResourceRecord
	)
	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.Navigate(target),
	}
	if h.opts.Settle > 0 {
		tasks = append(tasks, chromedp.Sleep(h.opts.Settle))
	}
	tasks = append(tasks,
		chromedp.Evaluate(outerHTMLScript, &markup),
		chromedp.Evaluate(resourceEntriesScript, &entries),
	)

	h.opts.Log.Debugf("chrome navigate %s", target)
	if err := chromedp.Run(chromeCtx, tasks...); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("chrome not found: %w", ErrHostUnavailable)
		}
		return "", fmt.Errorf("render %s: %w", target, err)
	}

	recMu.Lock()
	all := mergeRecords(requests, entries)
	recMu.Unlock()
	h.opts.Log.Debugf("chrome rendered %s bytes=%d requests=%d", target, len(markup), len(all))

	h.mu.Lock()
	if h.url == target {
		h.records = all
	}
	h.mu.Unlock()
	return markup, nil
}

// ResourceRecords returns the requests observed during the last Markup call.
func (h *ChromeHost) ResourceRecords(ctx context.Context) ([]models.ResourceRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.ResourceRecord, len(h.records))
	copy(out, h.records)
	return out, nil
}

func mergeRecords(lists ...[]models.ResourceRecord) []models.ResourceRecord {
	seen := map[string]struct{}{}
	var out []models.ResourceRecord
	for _, list := range lists {
		for _, r := range list {
			if r.URL == "" {
				continue
			}
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}
