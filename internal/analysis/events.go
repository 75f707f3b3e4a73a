package analysis

import "analytics-tag-checker/internal/models"

type EventType string

const (
	EventAnalysis     EventType = "analysis"
	EventNotification EventType = "notification"
)

// Notification levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Event is what observers of a session receive: either a new PageAnalysis
// snapshot or a transient notification meant for the user.
type Event struct {
	Type     EventType            `json:"type"`
	Analysis *models.PageAnalysis `json:"analysis,omitempty"`
	Level    string               `json:"level,omitempty"`
	Message  string               `json:"message,omitempty"`
}

// PageLoaded is sent by the host when a tab finished loading. URL is set when
// the tab navigated somewhere new.
type PageLoaded struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url,omitempty"`
}

// NetworkConfirmed carries the result of an out-of-band network check for one
// vendor on one page. An empty URL means the page currently analysed.
type NetworkConfirmed struct {
	URL      string        `json:"url,omitempty"`
	Vendor   models.Vendor `json:"vendor"`
	Detected bool          `json:"detected"`
}
