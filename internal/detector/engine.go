package detector

import "analytics-tag-checker/internal/models"

// Detector finds one vendor in a page.
type Detector interface {
	Vendor() models.Vendor
	Detect(markup string, records []models.ResourceRecord) models.DetectionResult
}

// NetworkConfirmable is implemented by detectors that accept a request to one
// of their domains as proof of presence.
type NetworkConfirmable interface {
	NetworkDomains() []string
}

// MarkupDetector runs an extractor and, when Domains is set, also accepts a
// network hit as proof of presence.
type MarkupDetector struct {
	Name    models.Vendor
	Extract func(markup string) []string
	Domains []string
}

func (d MarkupDetector) Vendor() models.Vendor { return d.Name }

func (d MarkupDetector) NetworkDomains() []string { return d.Domains }

func (d MarkupDetector) Detect(markup string, records []models.ResourceRecord) models.DetectionResult {
	ids := d.Extract(markup)
	if ids == nil {
		ids = []string{}
	}
	detected := len(ids) > 0
	if !detected && len(d.Domains) > 0 {
		detected = Probe(records, d.Domains)
	}
	return models.DetectionResult{Detected: detected, IDs: ids}
}

// Defaults returns one detector per known vendor, in models.Vendors order.
func Defaults() []Detector {
	return []Detector{
		MarkupDetector{Name: models.VendorGTM, Extract: ExtractGTM},
		MarkupDetector{Name: models.VendorGA4, Extract: ExtractGA4},
		MarkupDetector{Name: models.VendorAdobe, Extract: ExtractAdobe},
		MarkupDetector{Name: models.VendorAmplitude, Extract: ExtractAmplitude, Domains: AmplitudeDomains},
		MarkupDetector{Name: models.VendorClarity, Extract: ExtractClarity, Domains: ClarityDomains},
	}
}

type Engine struct {
	detectors []Detector
}

// New builds an engine over the given detectors, or Defaults() when none are given.
func New(detectors ...Detector) *Engine {
	if len(detectors) == 0 {
		detectors = Defaults()
	}
	return &Engine{detectors: detectors}
}

func (e *Engine) Vendors() []models.Vendor {
	out := make([]models.Vendor, 0, len(e.detectors))
	for _, d := range e.detectors {
		out = append(out, d.Vendor())
	}
	return out
}

// Run applies every detector to the same markup. Detectors share nothing, so
// the order does not matter.
func (e *Engine) Run(markup string, records []models.ResourceRecord) map[models.Vendor]models.DetectionResult {
	out := make(map[models.Vendor]models.DetectionResult, len(e.detectors))
	for _, d := range e.detectors {
		out[d.Vendor()] = d.Detect(markup, records)
	}
	return out
}

// SupportsNetwork reports whether v can be confirmed by a network signal alone.
func (e *Engine) SupportsNetwork(v models.Vendor) bool {
	for _, d := range e.detectors {
		if d.Vendor() != v {
			continue
		}
		nc, ok := d.(NetworkConfirmable)
		return ok && len(nc.NetworkDomains()) > 0
	}
	return false
}
