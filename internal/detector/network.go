package detector

import (
	"strings"

	"analytics-tag-checker/internal/models"
)

// Probe reports whether any observed resource load hit one of domains.
// It stops at the first match; no records means no signal.
func Probe(records []models.ResourceRecord, domains []string) bool {
	for _, r := range records {
		if r.URL == "" {
			continue
		}
		for _, d := range domains {
			if strings.Contains(r.URL, d) {
				return true
			}
		}
	}
	return false
}
