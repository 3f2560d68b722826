package common

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Dr-Twilight/port-status-inspection/util"
)

// Well-known dialect tags. Other tags are allowed as long as the command set
// file has a matching column.
const (
	DialectHuaweiVRP  = "huawei"
	DialectH3CComware = "hp_comware"
)

// DeviceSpec - A device to inspect. Immutable once a task starts.
type DeviceSpec struct {
	Host           string  `json:"host"`         // Display name, unique
	Address        string  `json:"ip"`           // Management address
	DeviceType     string  `json:"device_type"`
	Username       string  `json:"username"`
	Password       string  `json:"password"`
	Secret         string  `json:"secret"`       // Optional privilege password
	Port           uint    `json:"port"`         // Optional, defaults to 22
	ConnectTimeout float64 `json:"conn_timeout"` // Seconds, optional
}

// MissingFields - Names of required identifying fields which are empty.
// Devices with missing fields must never be scheduled.
func (device DeviceSpec) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(device.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(device.Address) == "" {
		missing = append(missing, "ip")
	}
	if strings.TrimSpace(device.Username) == "" {
		missing = append(missing, "username")
	}
	if device.Port == 0 {
		missing = append(missing, "port")
	}
	if strings.TrimSpace(device.DeviceType) == "" {
		missing = append(missing, "device_type")
	}
	return missing
}

// LoadDevices - Load devices from file.
func LoadDevices(path string) ([]DeviceSpec, bool) {
	if path == "" {
		log.Error("Device config path missing")
		return nil, false
	}

	log.WithFields(log.Fields{
		"devices_path": path,
	}).Trace("Loading devices")
	var devices []DeviceSpec
	if !util.ParseJSONFile(&devices, path) {
		return nil, false
	}

	deviceHosts := make(map[string]bool)
	for _, device := range devices {
		// Check for duplicate host names, they identify devices in the log
		if device.Host != "" {
			if _, found := deviceHosts[device.Host]; found {
				log.WithFields(log.Fields{
					"device": device.Host,
				}).Error("Duplicate device host found")
				return nil, false
			}
			deviceHosts[device.Host] = true
		}
	}

	log.WithFields(log.Fields{
		"device_count": len(devices),
	}).Info("Loaded devices")

	return devices, true
}
