package db

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2api "github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/Dr-Twilight/port-status-inspection/common"
	"github.com/Dr-Twilight/port-status-inspection/util"
)

// InfluxDBBucket - InfluxDB bucket.
const InfluxDBBucket = "inspection"

var client *influxdb2.Client = nil
var clientWriteAPI *influxdb2api.WriteAPI

// StartClient - Start DB client in the background. Disabled when no DB URL
// is configured, stored entries are then dropped silently.
func StartClient(config common.Config, waitGroup *sync.WaitGroup, shutdown *util.ShutdownChannelDistributor) {
	if config.InfluxDBURL == "" {
		log.Info("No database configured, inspection entries will not be persisted")
		return
	}

	// Setup shutdown signal and waitgroup
	shutdownChannel := make(chan bool, 1)
	if !shutdown.AddListener(shutdownChannel) {
		return
	}
	waitGroup.Add(1)

	newClient := influxdb2.NewClient(config.InfluxDBURL, config.InfluxDBToken)
	client = &newClient

	cleanup := func() {
		if clientWriteAPI != nil {
			localWriteAPI := *clientWriteAPI
			clientWriteAPI = nil
			localWriteAPI.Flush()
		}
		localClient := *client
		client = nil
		localClient.Close()
		log.Info("DB client stopped")
		waitGroup.Done()
	}

	// Wait for DB connection (true) to come up or for shutdown signal (false)
	if !waitForDBUp(shutdownChannel) {
		cleanup()
		return
	}

	// Setup async write API and error logging
	writeAPI := (*client).WriteAPI(config.InfluxDBOrg, InfluxDBBucket)
	clientWriteAPI = &writeAPI
	writeAPIErrors := writeAPI.Errors()
	go func() {
		for err := range writeAPIErrors {
			log.WithError(err).Error("Failed to write to database")
		}
	}()

	go func() {
		<-shutdownChannel
		cleanup()
	}()

	log.Info("DB client started: ", config.InfluxDBURL)
}

func waitForDBUp(shutdownChannel <-chan bool) bool {
	checkHealth := func() bool {
		_, err := (*client).Health(context.Background())
		if err != nil {
			log.WithError(err).Tracef("Database connection error")
			return false
		}
		return true
	}
	if checkHealth() {
		return true
	}
	log.Info("Waiting for database")
	for {
		select {
		case <-time.Tick(1 * time.Second):
			if checkHealth() {
				return true
			}
		case <-shutdownChannel:
			return false
		}
	}
}

// StoreInspectionEntry - Attempt to store an inspection entry in the DB.
func StoreInspectionEntry(entry common.InspectionEntry) {
	log.WithFields(log.Fields{
		"device":   entry.Device,
		"run_id":   entry.RunID,
		"time":     entry.Time,
		"duration": entry.Duration,
		"success":  entry.Success,
		"outcome":  entry.Outcome,
	}).Trace("Inspection entry")

	if clientWriteAPI == nil {
		return
	}

	point := influxdb2.NewPointWithMeasurement("inspection").
		AddTag("device", entry.Device).
		AddTag("run_id", entry.RunID).
		AddField("duration_seconds", float64(entry.Duration)/float64(time.Second)).
		AddField("success", entry.Success).
		AddField("outcome", entry.Outcome).
		SetTime(entry.Time)
	(*clientWriteAPI).WritePoint(point)
}
