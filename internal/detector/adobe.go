package detector

import "analytics-tag-checker/internal/models"

var adobePatterns = []Pattern{
	// AppMeasurement report suite: s.account = "RSID1,RSID2"
	newPattern(models.VendorAdobe, "report-suite", `s\.account\s*=\s*["']([A-Z0-9,]+)["']`, 1),
	// Experience Cloud visitor id cookie fragment
	newPattern(models.VendorAdobe, "ecid", `MCMID\|(\d+)`, 1),
	// Launch / Tags container file, kept whole
	newPattern(models.VendorAdobe, "launch-container", `launch-[A-Za-z0-9]{8,}`, 0),
}

func ExtractAdobe(markup string) []string {
	return collect(markup, adobePatterns).list()
}
