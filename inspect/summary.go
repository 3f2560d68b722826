package inspect

import (
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Error-indicator substrings scanned for in the run log. Lowercase, matched
// case-insensitively against warning and error lines.
var errorMarkers = []string{
	"connection failed",
	"unreachable",
	"no response",
	"timed out",
	"timeout",
	"permission denied",
	"authentication failed",
	"privilege escalation",
	"malformed login",
	"channel closed",
	"pagination deadlock",
	"unrecognized",
}

// Summarize - Distinct devices with at least one error-marker line in the run
// log, sorted by name. Only warning level and above is considered so that
// verbose progress lines cannot flag a healthy device.
func Summarize(runLog *RunLog) []string {
	failing := make(map[string]bool)
	for _, entry := range runLog.Entries() {
		if entry.Device == "" || entry.Level > log.WarnLevel {
			continue
		}
		message := strings.ToLower(entry.Message)
		for _, marker := range errorMarkers {
			if strings.Contains(message, marker) {
				failing[entry.Device] = true
				break
			}
		}
	}

	devices := make([]string, 0, len(failing))
	for device := range failing {
		devices = append(devices, device)
	}
	sort.Strings(devices)
	return devices
}

// ReportSummary - Log the distinct-failure report at the end of a run.
func ReportSummary(runLog *RunLog) int {
	failingDevices := Summarize(runLog)
	if len(failingDevices) == 0 {
		log.Info("No failing devices found")
		return 0
	}
	log.Warnf("Found %v devices with failures:", len(failingDevices))
	for _, device := range failingDevices {
		log.Warnf("- failing device: %v", device)
	}
	return len(failingDevices)
}
