package common

import (
	"time"
)

// InspectionEntry - Result of inspecting one device, for persistence.
type InspectionEntry struct {
	Time     time.Time
	RunID    string
	Device   string
	Duration time.Duration
	Success  bool
	Outcome  string
}
