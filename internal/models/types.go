
package models

import "time"

type Vendor string

const (
	VendorGTM       Vendor = "gtm"
	VendorGA4       Vendor = "ga4"
	VendorAdobe     Vendor = "adobe"
	VendorAmplitude Vendor = "amplitude"
	VendorClarity   Vendor = "clarity"
)

// Vendors is the fixed vendor enumeration in display order.
var Vendors = []Vendor{VendorGTM, VendorGA4, VendorAdobe, VendorAmplitude, VendorClarity}

func (v Vendor) Valid() bool {
	for _, known := range Vendors {
		if v == known {
			return true
		}
	}
	return false
}

// Title is the human readable product name.
func (v Vendor) Title() string {
	switch v {
	case VendorGTM:
		return "Google Tag Manager"
	case VendorGA4:
		return "Google Analytics 4"
	case VendorAdobe:
		return "Adobe Analytics"
	case VendorAmplitude:
		return "Amplitude"
	case VendorClarity:
		return "Microsoft Clarity"
	}
	return string(v)
}

type DetectionResult struct {
	Detected bool     `json:"detected"`
	IDs      []string `json:"ids"`
}

// Undetected returns a result with an empty, non-nil id list so it encodes as [].
func Undetected() DetectionResult {
	return DetectionResult{IDs: []string{}}
}

type ResourceRecord struct {
	URL           string `json:"url"`
	InitiatorType string `json:"initiatorType,omitempty"`
}

type PageAnalysis struct {
	Results         map[Vendor]DetectionResult `json:"results"`
	IsLoading       bool                       `json:"isLoading"`
	IsRestrictedURL bool                       `json:"isRestrictedUrl"`
	CurrentURL      string                     `json:"currentUrl"`
	Mock            bool                       `json:"mock,omitempty"`
	AnalyzedAt      *time.Time                 `json:"analyzedAt,omitempty"`
}

// NewPageAnalysis returns the session start state: nothing detected, not loading.
func NewPageAnalysis() PageAnalysis {
	results := make(map[Vendor]DetectionResult, len(Vendors))
	for _, v := range Vendors {
		results[v] = Undetected()
	}
	return PageAnalysis{Results: results}
}

// DetectedCount is the page-level summary shown next to the vendor list.
func (p PageAnalysis) DetectedCount() int {
	n := 0
	for _, r := range p.Results {
		if r.Detected {
			n++
		}
	}
	return n
}

func (p PageAnalysis) Result(v Vendor) DetectionResult {
	if r, ok := p.Results[v]; ok {
		return r
	}
	return Undetected()
}

func (p PageAnalysis) Clone() PageAnalysis {
	out := p
	out.Results = make(map[Vendor]DetectionResult, len(p.Results))
	for v, r := range p.Results {
		ids := make([]string, len(r.IDs))
		copy(ids, r.IDs)
		out.Results[v] = DetectionResult{Detected: r.Detected, IDs: ids}
	}
	if p.AnalyzedAt != nil {
		t := *p.AnalyzedAt
		out.AnalyzedAt = &t
	}
	return out
}
