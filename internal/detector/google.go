package detector

import "analytics-tag-checker/internal/models"

var gtmPatterns = []Pattern{
	newPattern(models.VendorGTM, "container-id", `GTM-[A-Z0-9]{1,8}`, 0),
}

var ga4Patterns = []Pattern{
	newPattern(models.VendorGA4, "measurement-id", `G-[A-Z0-9]{8,10}`, 0),
}

// ExtractGTM returns Tag Manager container ids (GTM-XXXX).
func ExtractGTM(markup string) []string {
	return collect(markup, gtmPatterns).list()
}

// ExtractGA4 returns GA4 measurement ids (G-XXXXXXXX).
func ExtractGA4(markup string) []string {
	return collect(markup, ga4Patterns).list()
}
