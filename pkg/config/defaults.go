package config

// Defaults contains values applied to alert submissions that leave them out.
type Defaults struct {
	// Alert type used when a submission has none
	AlertType string `yaml:"alert_type,omitempty"`

	// Runbook URL attached to sessions submitted without one
	RunbookURL string `yaml:"runbook_url,omitempty"`
}
