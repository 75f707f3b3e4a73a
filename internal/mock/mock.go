package mock

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"analytics-tag-checker/internal/models"
)

// presence threshold: a vendor is present when a uniform draw exceeds it (70%).
const presence = 0.3

const (
	upperAlnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	lowerAlnum = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Generator produces synthetic analyses for environments without a page to inspect.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator seeds the generator; seed 0 uses the clock.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Analysis() models.PageAnalysis {
	g.mu.Lock()
	defer g.mu.Unlock()

	a := models.NewPageAnalysis()
	a.Mock = true
	for _, v := range models.Vendors {
		if g.rnd.Float64() <= presence {
			continue
		}
		n := 1 + g.rnd.Intn(2)
		ids := make([]string, 0, n)
		for len(ids) < n {
			id := g.id(v)
			if !contains(ids, id) {
				ids = append(ids, id)
			}
		}
		a.Results[v] = models.DetectionResult{Detected: true, IDs: ids}
	}
	return a
}

func (g *Generator) id(v models.Vendor) string {
	switch v {
	case models.VendorGTM:
		return "GTM-" + g.chars(upperAlnum, 7)
	case models.VendorGA4:
		return "G-" + g.chars(upperAlnum, 8)
	case models.VendorAdobe:
		return "launch-" + g.chars(upperAlnum, 10)
	case models.VendorAmplitude:
		return g.chars(upperAlnum, 32)
	case models.VendorClarity:
		return g.chars(lowerAlnum, 10)
	}
	return g.chars(lowerAlnum, 8)
}

func (g *Generator) chars(alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[g.rnd.Intn(len(alphabet))]
	}
	return string(b)
}

// Markup renders an analysis back into the integration snippets each vendor
// ships, so the engine finds exactly the generated ids again.
func Markup(a models.PageAnalysis) string {
	var sb strings.Builder
	sb.WriteString("<!doctype html><html><head><title>mock page</title>\n")
	for _, v := range models.Vendors {
		for _, id := range a.Result(v).IDs {
			switch v {
			case models.VendorGTM:
				fmt.Fprintf(&sb, "<script>(function(w,d,s,l,i){w[l]=w[l]||[];})(window,document,'script','dataLayer','%s');</script>\n", id)
			case models.VendorGA4:
				fmt.Fprintf(&sb, "<script async src=\"https://www.googletagmanager.com/gtag/js?id=%s\"></script>\n", id)
			case models.VendorAdobe:
				fmt.Fprintf(&sb, "<script src=\"https://assets.adobedtm.com/mock/%s.min.js\" async></script>\n", id)
			case models.VendorAmplitude:
				fmt.Fprintf(&sb, "<script>amplitude.getInstance().init(\"%s\");</script>\n", id)
			case models.VendorClarity:
				fmt.Fprintf(&sb, "<script>clarity.load(\"%s\");</script>\n", id)
			}
		}
	}
	sb.WriteString("</head><body><p>Development environment - mock page</p></body></html>")
	return sb.String()
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

const DefaultURL = "https://mock.local/"

// Host serves generated markup in place of a real page.
type Host struct {
	URL string
	Gen *Generator

	mu sync.Mutex
}

func NewHost(gen *Generator) *Host {
	return &Host{URL: DefaultURL, Gen: gen}
}

func (h *Host) CurrentURL(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.URL, nil
}

func (h *Host) Markup(ctx context.Context) (string, error) {
	return Markup(h.Gen.Analysis()), nil
}

func (h *Host) Simulated() bool { return true }

func (h *Host) ResourceRecords(ctx context.Context) ([]models.ResourceRecord, error) {
	return nil, nil
}

func (h *Host) Navigate(ctx context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.URL = url
	return nil
}
