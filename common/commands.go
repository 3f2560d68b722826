package common

import (
	log "github.com/sirupsen/logrus"

	"github.com/Dr-Twilight/port-status-inspection/util"
)

// CommandSet - Ordered inspection commands per dialect tag.
// Read-only once loaded, shared across all concurrent tasks.
type CommandSet map[string][]string

// CommandsFor - Resolve the command list for a dialect tag, nil if none configured.
func (commandSet CommandSet) CommandsFor(deviceType string) []string {
	return commandSet[deviceType]
}

// LoadCommands - Load the command set from a YAML file mapping dialect tag to command list.
func LoadCommands(path string) (CommandSet, bool) {
	if path == "" {
		log.Error("Command set path missing")
		return nil, false
	}

	log.WithFields(log.Fields{
		"commands_path": path,
	}).Trace("Loading command sets")
	var commandSet CommandSet
	if !util.ParseYAMLFile(&commandSet, path) {
		return nil, false
	}

	commandCount := 0
	for deviceType, commands := range commandSet {
		if len(commands) == 0 {
			log.WithFields(log.Fields{
				"device_type": deviceType,
			}).Warn("Dialect has no commands configured")
		}
		commandCount += len(commands)
	}

	log.WithFields(log.Fields{
		"dialect_count": len(commandSet),
		"command_count": commandCount,
	}).Info("Loaded command sets")

	return commandSet, true
}
