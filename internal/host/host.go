package host

import (
	"context"
	"errors"

	"analytics-tag-checker/internal/models"
)

var (
	// ErrAccessDenied is returned when the page cannot be read, e.g. a browser-internal URL.
	ErrAccessDenied = errors.New("access denied")
	// ErrHostUnavailable means there is no page-inspection capability at all.
	ErrHostUnavailable = errors.New("host unavailable")
)

// Host gives read-only access to the page under inspection.
type Host interface {
	CurrentURL(ctx context.Context) (string, error)
	Markup(ctx context.Context) (string, error)
	ResourceRecords(ctx context.Context) ([]models.ResourceRecord, error)
}

// Simulator is implemented by hosts that serve generated pages instead of
// real ones; their analyses are flagged as mock results.
type Simulator interface {
	Simulated() bool
}

// Navigator is implemented by hosts that can be pointed at another page.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}
