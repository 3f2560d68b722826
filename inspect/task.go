package inspect

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Dr-Twilight/port-status-inspection/common"
	"github.com/Dr-Twilight/port-status-inspection/session"
)

// OutcomeKind - How a device's inspection ended.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeConnectFailure
	OutcomeTaskTimeout
	OutcomeTransportError
	OutcomeSkipped
)

// String - Outcome kind name, used as metric label and DB field.
func (kind OutcomeKind) String() string {
	switch kind {
	case OutcomeSuccess:
		return "success"
	case OutcomeConnectFailure:
		return "connect_failure"
	case OutcomeTaskTimeout:
		return "task_timeout"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome - Recorded result of one device's inspection.
type Outcome struct {
	Device       string
	Kind         OutcomeKind
	ConnectError session.ConnectErrorKind
	Duration     time.Duration
}

// Success - Whether the device completed without a recorded failure.
func (outcome Outcome) Success() bool {
	return outcome.Kind == OutcomeSuccess || outcome.Kind == OutcomeSkipped
}

// Task - Inspection of one device: all configured commands for its dialect,
// in order, within the task budget.
type Task struct {
	Device   common.DeviceSpec
	Commands common.CommandSet
	Config   common.Config
	Verbose  bool
	Metrics  *Metrics
}

// Inspect - Run the inspection. Per-command failures are logged and recovered,
// never propagated; only an exhausted budget or a dead channel stops the
// remaining commands.
func (task Task) Inspect(provider session.Provider) (outcome Outcome) {
	startTime := time.Now()
	deviceLog := log.WithFields(log.Fields{
		"device": task.Device.Host,
	})
	outcome = Outcome{Device: task.Device.Host, Kind: OutcomeSuccess}

	deviceLog.Infof("Connecting (timeout %v)", task.connectTimeout())
	sess, connectError := provider.Connect(task.Device)
	if connectError != nil {
		task.logConnectFailure(deviceLog, connectError)
		outcome.Kind = OutcomeConnectFailure
		outcome.ConnectError = connectError.Kind
		outcome.Duration = time.Since(startTime)
		return outcome
	}

	// The session is closed exactly once no matter how the task exits,
	// Disconnect tolerates a channel the remote end already closed.
	defer func() {
		sess.Disconnect()
		outcome.Duration = time.Since(startTime)
		deviceLog.Infof("Inspection finished in %.2f seconds, session resources released", time.Since(startTime).Seconds())
	}()

	// Privilege-escalate only when a secret is configured
	if task.Device.Secret != "" {
		if err := sess.Enable(); err != nil {
			deviceLog.WithError(err).Error("Connection failed, privilege escalation (enable password) authentication failed")
			outcome.Kind = OutcomeConnectFailure
			outcome.ConnectError = session.ConnectEnableAuthFailure
			return outcome
		}
	}

	prompt, err := sess.FindPrompt()
	if err != nil || strings.TrimSpace(prompt) == "" {
		prompt = task.Device.Host
	} else {
		prompt = strings.TrimSpace(prompt)
	}

	commands := task.Commands.CommandsFor(task.Device.DeviceType)
	if len(commands) == 0 {
		deviceLog.WithFields(log.Fields{
			"device_type": task.Device.DeviceType,
		}).Error("No commands configured for dialect, device skipped")
		outcome.Kind = OutcomeSkipped
		return outcome
	}

	deviceLog.Info("Inspecting device")
	engine := NewEngine(task.Device.Host, task.Config.CommandTimeout(), task.Verbose)
	engine.Metrics = task.Metrics

	for _, rawCommand := range commands {
		command := cleanCommand(rawCommand)
		if command == "" {
			deviceLog.Debug("Skipping empty command")
			continue
		}
		if task.Verbose {
			deviceLog.Debugf("Running command: %v", command)
		}

		// Task budget first: a spent budget ends the device immediately
		remaining := task.Config.TaskTimeout() - time.Since(startTime)
		if remaining <= 0 {
			deviceLog.Error("Inspection task timed out, aborting remaining commands")
			sess.Disconnect()
			outcome.Kind = OutcomeTaskTimeout
			return outcome
		}

		// A dead channel ends the device without sending anything
		if sess.ChannelClosed() {
			deviceLog.Warn("Channel closed, remaining commands skipped")
			outcome.Kind = OutcomeTransportError
			return outcome
		}

		// This command gets the smaller of the default timeout and what is
		// left of the task budget
		commandTimeout := task.Config.CommandTimeout()
		if remaining < commandTimeout {
			commandTimeout = remaining
		}

		task.Metrics.RecordCommand()
		output, err := engine.RunCommand(sess, rawCommand, commandTimeout)
		if err != nil {
			// Fall back once to a single raw exchange without pagination
			deviceLog.WithError(err).Error("Pagination handling failed, falling back to a single raw read")
			output, err = engine.RawFallback(sess, rawCommand, commandTimeout)
			if err != nil {
				if sess.ChannelClosed() {
					if strings.EqualFold(command, "quit") {
						deviceLog.Info("Quit closed the channel as expected, remaining commands skipped")
					} else {
						deviceLog.Warn("Channel closed after command, remaining commands skipped")
						outcome.Kind = OutcomeTransportError
					}
					return outcome
				}
				deviceLog.WithError(err).Errorf("Raw read also failed for command: %v", command)
				output = ""
			}
		}

		// An unrecognized command is recovered locally, next command follows
		// with no further waiting
		if unrecognizedCommand(output) {
			deviceLog.WithFields(log.Fields{
				"command": command,
			}).Warnf("Unrecognized or incompatible command: %v", lastLine(output))
			continue
		}

		// Quit is expected to close the channel, a still-open channel means
		// the device dropped to user view and inspection continues
		if strings.EqualFold(command, "quit") {
			if sess.ChannelClosed() {
				deviceLog.Info("Quit closed the channel as expected, remaining commands skipped")
				return outcome
			}
			deviceLog.Info("Quit left the channel open, continuing with remaining commands")
		}

		if task.Verbose {
			deviceLog.Debugf("%v %v output:\n%v", prompt, command, output)
		}
	}

	return outcome
}

func (task Task) connectTimeout() time.Duration {
	if task.Device.ConnectTimeout > 0 {
		return time.Duration(task.Device.ConnectTimeout * float64(time.Second))
	}
	return task.Config.ConnectTimeout()
}

// One log line per classified connect failure kind.
func (task Task) logConnectFailure(deviceLog *log.Entry, connectError *session.ConnectError) {
	switch connectError.Kind {
	case session.ConnectMissingAddress:
		deviceLog.Error("Connection failed, management address missing")
	case session.ConnectUnreachable:
		deviceLog.Error("Connection failed, no response (device down or network unreachable)")
	case session.ConnectAuthFailure:
		deviceLog.Error("Connection failed, username or password authentication failed")
	case session.ConnectEnableAuthFailure:
		deviceLog.Error("Connection failed, enable password authentication failed")
	case session.ConnectTransportTimeout:
		deviceLog.Error("Connection failed, transport timed out")
	case session.ConnectMalformedLogin:
		deviceLog.Error("Connection failed, malformed login fields")
	default:
		deviceLog.WithError(connectError.Err).Error("Connection failed, unknown error")
	}
}

func lastLine(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
