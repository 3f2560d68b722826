package inspect

import (
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Dr-Twilight/port-status-inspection/common"
	"github.com/Dr-Twilight/port-status-inspection/session"
)

// Worker pool sizing.
const (
	workersPerCPU         = 5
	absoluteWorkerCeiling = 200
)

// Extra wait beyond the per-device budget before a worker is abandoned.
const graceDelay = 5 * time.Second

// Options - Fleet run knobs.
type Options struct {
	Config  common.Config
	Verbose bool
	Metrics *Metrics
}

func workerCeiling(deviceCount int, maxWorkers int) int {
	ceiling := runtime.NumCPU() * workersPerCPU
	if maxWorkers <= 0 || maxWorkers > absoluteWorkerCeiling {
		maxWorkers = absoluteWorkerCeiling
	}
	if ceiling > maxWorkers {
		ceiling = maxWorkers
	}
	if deviceCount < ceiling {
		ceiling = deviceCount
	}
	if ceiling < 1 {
		ceiling = 1
	}
	return ceiling
}

// RunFleet - Inspect all devices concurrently with a bounded worker pool and
// collect per-device outcomes. Workers left running past the grace deadline
// are abandoned, they tear their own session down from within and cannot
// block process shutdown.
func RunFleet(provider session.Provider, devices []common.DeviceSpec, commands common.CommandSet, options Options) []Outcome {
	// Devices missing required identifying fields never reach a worker
	scheduled := make([]common.DeviceSpec, 0, len(devices))
	for _, device := range devices {
		if missingFields := device.MissingFields(); len(missingFields) > 0 {
			log.WithFields(log.Fields{
				"device": device.Host,
			}).Warnf("Skipping device, missing: %v", strings.Join(missingFields, ", "))
			continue
		}
		scheduled = append(scheduled, device)
	}
	if len(scheduled) == 0 {
		log.Warn("No devices to inspect")
		return nil
	}

	workers := workerCeiling(len(scheduled), options.Config.MaxWorkers)
	log.WithFields(log.Fields{
		"device_count": len(scheduled),
		"worker_count": workers,
	}).Info("Starting fleet inspection")

	jobs := make(chan common.DeviceSpec)
	results := make(chan Outcome, len(scheduled))
	for i := 0; i < workers; i++ {
		go func() {
			for device := range jobs {
				task := Task{
					Device:   device,
					Commands: commands,
					Config:   options.Config,
					Verbose:  options.Verbose,
					Metrics:  options.Metrics,
				}
				results <- task.Inspect(provider)
			}
		}()
	}
	go func() {
		for _, device := range scheduled {
			jobs <- device
		}
		close(jobs)
	}()

	// Tasks enforce their own stricter internal deadline, the scheduler only
	// stops waiting past the grace deadline and reports a timeout outcome.
	grace := options.Config.TaskTimeout() + graceDelay
	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	outcomes := make([]Outcome, 0, len(scheduled))
	finished := make(map[string]bool)
	for len(outcomes) < len(scheduled) {
		select {
		case outcome := <-results:
			finished[outcome.Device] = true
			outcomes = append(outcomes, outcome)
			options.Metrics.RecordOutcome(outcome)
		case <-deadline.C:
			for _, device := range scheduled {
				if finished[device.Host] {
					continue
				}
				log.WithFields(log.Fields{
					"device": device.Host,
				}).Warnf("Inspection task still running past the grace deadline (%v), abandoned and reported as timeout", grace)
				abandoned := Outcome{Device: device.Host, Kind: OutcomeTaskTimeout, Duration: grace}
				outcomes = append(outcomes, abandoned)
				options.Metrics.RecordOutcome(abandoned)
			}
			return outcomes
		}
	}
	return outcomes
}
