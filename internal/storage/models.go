package storage

import "time"

// DateLayout is the layout of LastHighAlertStartDate.
const DateLayout = "2006-01-02"

// State is the persisted alerting record. It is read fresh at the start of
// every check and overwritten in full afterwards.
type State struct {
	HighAlertActive        bool     `json:"high_alert_active" yaml:"high_alert_active"`
	LastHighAlertStartDate *string  `json:"last_high_alert_start_date" yaml:"last_high_alert_start_date"`
	LastValue              *float64 `json:"last_value" yaml:"last_value"`
}

// DefaultState returns the record used when nothing usable is stored.
func DefaultState() State {
	return State{}
}

// WithLastValue returns a copy with LastValue set.
func (s State) WithLastValue(v float64) State {
	s.LastValue = &v
	return s
}

// StartedOn returns a copy recording the episode start date in t's location.
func (s State) StartedOn(t time.Time) State {
	day := t.Format(DateLayout)
	s.LastHighAlertStartDate = &day
	return s
}

// Equal compares two records by value.
func (s State) Equal(o State) bool {
	if s.HighAlertActive != o.HighAlertActive {
		return false
	}
	if (s.LastHighAlertStartDate == nil) != (o.LastHighAlertStartDate == nil) {
		return false
	}
	if s.LastHighAlertStartDate != nil && *s.LastHighAlertStartDate != *o.LastHighAlertStartDate {
		return false
	}
	if (s.LastValue == nil) != (o.LastValue == nil) {
		return false
	}
	return s.LastValue == nil || *s.LastValue == *o.LastValue
}
