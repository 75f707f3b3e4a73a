package detector

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"analytics-tag-checker/internal/models"
)

// ClaritySentinel stands in for an id when the Clarity script is loaded but
// the project id is not visible in the markup.
const ClaritySentinel = "clarity-script-detected"

var clarityPatterns = []Pattern{
	newPattern(models.VendorClarity, "load", `clarity\.load\(\s*["']([a-zA-Z0-9]+)["']`, 1),
	newPattern(models.VendorClarity, "project-id", `["']projectId["']\s*:\s*["']([a-zA-Z0-9]+)["']`, 1),
}

var clarityIDShape = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

var ClarityDomains = []string{
	"clarity.ms",
	"clarity.microsoft.com",
	"c.clarity.ms",
	"www.clarity.ms",
}

func ExtractClarity(markup string) []string {
	set := collect(markup, clarityPatterns)
	for _, id := range jsonConfigValues(markup, "projectId") {
		if clarityIDShape.MatchString(id) {
			set.add(id)
		}
	}
	if len(set.list()) == 0 && hasClarityScript(markup) {
		set.add(ClaritySentinel)
	}
	return set.list()
}

func hasClarityScript(markup string) bool {
	if !strings.Contains(markup, "clarity.js") {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return false
	}
	return doc.Find(`script[src*="clarity.js"]`).Length() > 0
}
