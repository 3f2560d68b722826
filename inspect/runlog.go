package inspect

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// RunLogEntry - One captured log line with the device it concerns.
type RunLogEntry struct {
	Level   log.Level
	Device  string
	Message string
}

// RunLog - Logrus hook accumulating the run's log entries so the end-of-run
// summary can scan them. The device identifier travels as a structured field,
// not as a positional token in the rendered line. Fire never logs, so the
// logger's own serialization cannot re-enter it.
type RunLog struct {
	mutex   sync.Mutex
	entries []RunLogEntry
}

// Levels - Capture every level.
func (runLog *RunLog) Levels() []log.Level {
	return log.AllLevels
}

// Fire - Record the entry.
func (runLog *RunLog) Fire(entry *log.Entry) error {
	device, _ := entry.Data["device"].(string)
	runLog.mutex.Lock()
	defer runLog.mutex.Unlock()
	runLog.entries = append(runLog.entries, RunLogEntry{
		Level:   entry.Level,
		Device:  device,
		Message: entry.Message,
	})
	return nil
}

// Entries - Snapshot of the captured entries.
func (runLog *RunLog) Entries() []RunLogEntry {
	runLog.mutex.Lock()
	defer runLog.mutex.Unlock()
	entries := make([]RunLogEntry, len(runLog.entries))
	copy(entries, runLog.entries)
	return entries
}
