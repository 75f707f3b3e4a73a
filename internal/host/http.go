package host

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"analytics-tag-checker/internal/gate"
	"analytics-tag-checker/internal/models"
)

// resourceSelectors lists the elements whose URLs the browser would load.
var resourceSelectors = []struct {
	sel, attr, initiator string
}{
	{"script[src]", "src", "script"},
	{"link[href]", "href", "link"},
	{"img[src]", "src", "img"},
	{"iframe[src]", "src", "iframe"},
}

// HTTPHost inspects a page by downloading it. It cannot observe requests made
// by scripts at runtime, so its resource records are the URLs referenced from
// the static markup.
type HTTPHost struct {
	client *HTTPClient

	mu   sync.Mutex
	url  string
	page *Page
}

func NewHTTPHost(client *HTTPClient, rawURL string) *HTTPHost {
	return &HTTPHost{client: client, url: rawURL}
}

func (h *HTTPHost) CurrentURL(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url, nil
}

func (h *HTTPHost) Navigate(ctx context.Context, rawURL string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rawURL != h.url {
		h.url = rawURL
		h.page = nil
	}
	return nil
}

// Markup fetches the page again on every call; the result is kept for
// ResourceRecords.
func (h *HTTPHost) Markup(ctx context.Context) (string, error) {
	h.mu.Lock()
	target := h.url
	h.mu.Unlock()

	if gate.IsRestricted(target) {
		return "", fmt.Errorf("%s: %w", target, ErrAccessDenied)
	}
	page, err := h.client.Fetch(ctx, target)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	if h.url == target {
		h.page = &page
	}
	h.mu.Unlock()
	return page.Markup, nil
}

func (h *HTTPHost) ResourceRecords(ctx context.Context) ([]models.ResourceRecord, error) {
	h.mu.Lock()
	page := h.page
	h.mu.Unlock()
	if page == nil {
		return nil, nil
	}
	return ReferencedResources(page.Markup, page.FinalURL)
}

// ReferencedResources lists absolute URLs of scripts, links, images and frames
// in markup, resolved against base.
func ReferencedResources(markup, base string) ([]models.ResourceRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	baseURL, _ := url.Parse(base)

	seen := map[string]struct{}{}
	var out []models.ResourceRecord
	for _, rs := range resourceSelectors {
		doc.Find(rs.sel).Each(func(i int, s *goquery.Selection) {
			ref := strings.TrimSpace(s.AttrOr(rs.attr, ""))
			if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
				return
			}
			abs := ref
			if u, err := url.Parse(ref); err == nil && baseURL != nil {
				abs = baseURL.ResolveReference(u).String()
			}
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			out = append(out, models.ResourceRecord{URL: abs, InitiatorType: rs.initiator})
		})
	}
	return out, nil
}
