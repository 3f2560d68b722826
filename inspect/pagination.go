package inspect

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Dr-Twilight/port-status-inspection/session"
)

// Pagination loop ceilings.
const (
	defaultMaxPages   = 200
	bigOutputMaxPages = defaultMaxPages * 3
	maxRepeatPages    = 5
)

// Floor for the scaled-up large-output command timeout ceiling.
const longTimeoutFloor = 240 * time.Second

// Warnings appended to truncated command output.
const (
	paginationDeadlockWarning = "\n[warning] repeated pages with no new output, pagination deadlock suspected, aborted\n"
	paginationTimeoutWarning  = "\n[warning] command timed out while paging, aborted\n"
)

// Commands known to produce no meaningful reply (mode switches and
// paging-disable commands).
var noOutputCommands = map[string]bool{
	"sys":                       true,
	"enable":                    true,
	"user-inter con 0":          true,
	"quit":                      true,
	"undo screen-length":        true,
	"screen-length disable":     true,
	"screen-length enable":      true,
	"screen-length 0":           true,
	"screen-length 0 temporary": true,
}

// Commands known to produce voluminous output.
var bigOutputCommands = map[string]bool{
	"display ospf routing":                true,
	"display ip routing-table statistics": true,
	"display ip routing-table":            true,
	"display current-configuration":       true,
	"display interface":                   true,
	"display stp":                         true,
	"display mac-address":                 true,
	"display device manuinfo":             true,
	"display elabel":                      true,
}

// Vendor "more output" prompts and the keystroke that continues them.
// Dialect quirks are data, not subclasses.
type paginationMarker struct {
	text         string
	continuation string
}

var paginationMarkers = []paginationMarker{
	{"---- More ----", " "},             // H3C, Huawei
	{"  ---- More ----  ", " "},         // Huawei variant, surrounding spaces
	{"---- More ----  ", " "},           // Huawei variant, trailing spaces
	{"  ---- More ----", " "},           // Huawei variant, leading spaces
	{"--More--", " "},                   // H3C, Cisco
	{"<--- More --->", " "},             // some H3C devices
	{"<Press ENTER to continue>", "\n"}, // Huawei
}

// Explicit error replies for no-output command classification.
var commandErrorPatterns = []string{
	"Permission denied",
	"Unrecognized command",
	"% Unrecognized command",
	"Error: Unrecognized command",
	"invalid input",
	"Invalid command",
}

// Alternative paging-disable spellings, tried in order when the configured
// one is rejected. Vendors signal success inconsistently across these.
var disablePagingAlternatives = []string{
	"screen-length 0",
	"screen-length 0 temporary",
	"undo screen-length",
	"screen-length enable",
}

// Strips control characters and spreadsheet export artifacts from commands.
var commandCleaner = strings.NewReplacer("_x000d_", "", "\r", "", "\n", "", "\t", "")

func cleanCommand(raw string) string {
	return strings.TrimSpace(commandCleaner.Replace(raw))
}

func unrecognizedCommand(output string) bool {
	return strings.Contains(output, "Unrecognized command") ||
		strings.Contains(output, "Error: Unrecognized command found at '^' position.")
}

func matchesErrorPattern(output string) bool {
	for _, pattern := range commandErrorPatterns {
		if strings.Contains(output, pattern) {
			return true
		}
	}
	return false
}

// Engine - Drives a single command to completion against one session,
// following vendor pagination prompts with loop and deadline protection.
type Engine struct {
	Device      string
	LongTimeout time.Duration
	Verbose     bool
	Metrics     *Metrics
}

// NewEngine - Engine for one device. The large-output timeout ceiling is
// three times the default command timeout, with a floor of 240 seconds.
func NewEngine(device string, defaultCommandTimeout time.Duration, verbose bool) Engine {
	longTimeout := 3 * defaultCommandTimeout
	if longTimeout < longTimeoutFloor {
		longTimeout = longTimeoutFloor
	}
	return Engine{Device: device, LongTimeout: longTimeout, Verbose: verbose}
}

// RunCommand - Run one command within the timeout budget and return its
// complete output, including any truncation warnings. Both output and error
// may be set.
func (engine Engine) RunCommand(sess session.Session, rawCommand string, timeout time.Duration) (string, error) {
	command := cleanCommand(rawCommand)
	if command == "" {
		return "skipped empty command", nil
	}

	// No-output commands get a single exchange and a synthesized status
	if noOutputCommands[command] {
		return engine.runNoOutputCommand(sess, rawCommand, command, timeout)
	}

	// Large-output commands get relaxed page and timeout ceilings
	maxPages := defaultMaxPages
	maxRepeats := maxRepeatPages
	if bigOutputCommands[command] {
		maxPages = bigOutputMaxPages
		maxRepeats = maxRepeatPages * 2
		scaledTimeout := 3 * timeout
		if scaledTimeout > engine.LongTimeout {
			scaledTimeout = engine.LongTimeout
		}
		timeout = scaledTimeout
		if engine.Verbose {
			log.WithFields(log.Fields{
				"device":  engine.Device,
				"command": command,
			}).Debugf("Large-output command, max_pages=%v timeout=%v", maxPages, timeout)
		}
	}

	currentPage, err := sess.SendAndWait(rawCommand, timeout)
	if err != nil {
		return currentPage, err
	}
	// Fast exit, no paging attempted for a command the device rejects
	if unrecognizedCommand(currentPage) {
		return currentPage, nil
	}

	output := currentPage
	pages := 0
	previousPage := ""
	repeats := 0
	startTime := time.Now()

	for {
		if unrecognizedCommand(currentPage) {
			break
		}

		// Deadlock guard: count pages identical to the previous one
		if strings.TrimSpace(currentPage) == strings.TrimSpace(previousPage) {
			repeats++
		} else {
			repeats = 0
			previousPage = currentPage
		}
		if engine.Verbose {
			log.WithFields(log.Fields{
				"device": engine.Device,
			}).Debugf("Page %v, page length %v, repeat count %v", pages, len(strings.TrimSpace(currentPage)), repeats)
		}
		if repeats >= maxRepeats {
			output += paginationDeadlockWarning
			break
		}

		// Deadline guard
		if time.Since(startTime) > timeout {
			output += paginationTimeoutWarning
			break
		}

		// Pagination-marker guard, tolerant to case and surrounding text
		found := false
		lowerPage := strings.ToLower(currentPage)
		for _, marker := range paginationMarkers {
			if !strings.Contains(lowerPage, strings.ToLower(marker.text)) {
				continue
			}
			found = true
			if engine.Verbose {
				log.WithFields(log.Fields{
					"device":  engine.Device,
					"command": command,
				}).Debugf("Page %v, matched pagination marker %q", pages, marker.text)
			}
			nextPage, err := sess.SendAndWait(marker.continuation, timeout)
			if err != nil {
				return output, err
			}
			engine.Metrics.RecordPage()
			output += nextPage
			currentPage = nextPage
			break
		}

		pages++
		if !found || pages > maxPages {
			break
		}
	}

	return output, nil
}

// RawFallback - Single raw exchange with pagination handling disabled, used
// when paginated handling of a command errors out.
func (engine Engine) RawFallback(sess session.Session, rawCommand string, timeout time.Duration) (string, error) {
	return sess.SendAndWait(rawCommand, timeout)
}

// A single exchange for a command expected to stay silent. The reply is
// classified as error, empty, echo-only or content.
func (engine Engine) runNoOutputCommand(sess session.Session, rawCommand string, command string, timeout time.Duration) (string, error) {
	if engine.Verbose {
		log.WithFields(log.Fields{
			"device":  engine.Device,
			"command": command,
		}).Debug("Running no-output command")
	}
	reply, err := sess.SendAndWait(rawCommand, timeout)
	if err != nil {
		return reply, err
	}

	if matchesErrorPattern(reply) {
		// A rejected paging-disable command gets the alternative spellings,
		// first non-error reply wins
		if strings.Contains(command, "screen-length") {
			for _, alternative := range disablePagingAlternatives {
				if alternative == command {
					continue
				}
				alternativeReply, err := sess.SendAndWait(alternative, timeout)
				if err != nil {
					return alternativeReply, err
				}
				if !matchesErrorPattern(alternativeReply) {
					if engine.Verbose {
						log.WithFields(log.Fields{
							"device":  engine.Device,
							"command": command,
						}).Debugf("Alternative paging-disable command accepted: %v", alternative)
					}
					return fmt.Sprintf("command %v rejected, accepted alternative %v: %v",
						command, alternative, strings.TrimSpace(alternativeReply)), nil
				}
			}
		}
		return fmt.Sprintf("command %v rejected: %v", command, strings.TrimSpace(reply)), nil
	}

	trimmedReply := strings.TrimSpace(reply)
	switch {
	case trimmedReply == "":
		return fmt.Sprintf("command %v completed with no output", command), nil
	case trimmedReply == command || trimmedReply == strings.TrimSpace(rawCommand):
		return fmt.Sprintf("command %v sent, echo only, may not have taken effect", command), nil
	default:
		return reply, nil
	}
}
