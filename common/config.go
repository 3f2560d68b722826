package common

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Dr-Twilight/port-status-inspection/util"
)

// AppName - Application name.
const AppName = "port-status-inspection"

// AppVersion - Application version.
const AppVersion = "1.0.0"

// AppAuthor - Application author.
const AppAuthor = "Dr-Twilight"

// PrometheusNamespace - Prometheus metrics namespace.
const PrometheusNamespace = "inspection"

// Config - The config.
type Config struct {
	HTTPEndpoint          string  `json:"http_endpoint"`
	InfluxDBURL           string  `json:"influxdb_url"`
	InfluxDBOrg           string  `json:"influxdb_org"`
	InfluxDBToken         string  `json:"influxdb_token"`
	DevicesPath           string  `json:"devices_path"`
	CommandsPath          string  `json:"commands_path"`
	TaskTimeoutSeconds    float64 `json:"task_timeout"`
	CommandTimeoutSeconds float64 `json:"command_timeout"`
	ConnectTimeoutSeconds float64 `json:"connect_timeout"`
	MaxWorkers            int     `json:"max_workers"`
}

// DefaultConfig - Config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		HTTPEndpoint:          "",
		DevicesPath:           "devices.json",
		CommandsPath:          "commands.yaml",
		TaskTimeoutSeconds:    600,
		CommandTimeoutSeconds: 10,
		ConnectTimeoutSeconds: 15,
		MaxWorkers:            200,
	}
}

// LoadConfig - Load configuration file. Keeps defaults for a missing path.
func LoadConfig(config *Config, path string) bool {
	if path == "" {
		// Allow no config
		return true
	}

	log.WithFields(log.Fields{
		"config_path": path,
	}).Info("Loading config")

	if !util.ParseJSONFile(config, path) {
		return false
	}

	// Validate
	if config.TaskTimeoutSeconds <= 0 {
		log.Error("Non-positive task timeout not allowed")
		return false
	}
	if config.CommandTimeoutSeconds <= 0 {
		log.Error("Non-positive command timeout not allowed")
		return false
	}
	if config.ConnectTimeoutSeconds <= 0 {
		log.Error("Non-positive connect timeout not allowed")
		return false
	}
	if config.MaxWorkers <= 0 {
		log.Error("Non-positive worker ceiling not allowed")
		return false
	}

	return true
}

// TaskTimeout - Per-device inspection budget as a duration.
func (config Config) TaskTimeout() time.Duration {
	return time.Duration(config.TaskTimeoutSeconds * float64(time.Second))
}

// CommandTimeout - Default per-command timeout as a duration.
func (config Config) CommandTimeout() time.Duration {
	return time.Duration(config.CommandTimeoutSeconds * float64(time.Second))
}

// ConnectTimeout - Session connect timeout as a duration.
func (config Config) ConnectTimeout() time.Duration {
	return time.Duration(config.ConnectTimeoutSeconds * float64(time.Second))
}
