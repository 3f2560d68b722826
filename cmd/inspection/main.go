package main

import (
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	"github.com/Dr-Twilight/port-status-inspection/common"
	"github.com/Dr-Twilight/port-status-inspection/db"
	"github.com/Dr-Twilight/port-status-inspection/http"
	"github.com/Dr-Twilight/port-status-inspection/inspect"
	"github.com/Dr-Twilight/port-status-inspection/session"
	"github.com/Dr-Twilight/port-status-inspection/util"
)

func main() {
	log.Infof("Starting %v version %v by %v", common.AppName, common.AppVersion, common.AppAuthor)

	// Parse CLI args (may exit)
	debug := false
	configPath := ""
	showOutput := false
	flag.BoolVar(&debug, "debug", debug, "Show debug messages.")
	flag.StringVar(&configPath, "config", configPath, "Config file path.")
	flag.BoolVar(&showOutput, "show-output", showOutput, "Show command output as it is collected.")
	flag.Parse()
	if debug {
		log.SetLevel(log.TraceLevel)
		log.Info("Debug mode enabled")
	} else if showOutput {
		// Command output is emitted at debug level
		log.SetLevel(log.DebugLevel)
	}

	// Load config
	config := common.DefaultConfig()
	if !common.LoadConfig(&config, configPath) {
		os.Exit(1)
	}

	// Load devices and command sets
	devices, ok := common.LoadDevices(config.DevicesPath)
	if !ok {
		os.Exit(1)
	}
	commands, ok := common.LoadCommands(config.CommandsPath)
	if !ok {
		os.Exit(1)
	}

	// The run log feeds the end-of-run failure summary
	runLog := &inspect.RunLog{}
	log.AddHook(runLog)
	runID := xid.New().String()
	log.WithFields(log.Fields{
		"run_id": runID,
	}).Info("Inspection run starting")

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	util.NewToolMetric(registry, common.PrometheusNamespace, common.AppVersion)
	metrics := inspect.NewMetrics(registry)

	// Setup internal shutdown mechanism
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
	shutdown := util.NewShutdownChannelDistributor(signalChannel)

	// Run internal services in background
	var waitGroup sync.WaitGroup
	http.StartServer(config, registry, &waitGroup, shutdown)
	db.StartClient(config, &waitGroup, shutdown)

	// Run the fleet
	runStartTime := time.Now()
	outcomes := inspect.RunFleet(session.SSHProvider{}, devices, commands, inspect.Options{
		Config:  config,
		Verbose: showOutput,
		Metrics: metrics,
	})
	for _, outcome := range outcomes {
		db.StoreInspectionEntry(common.InspectionEntry{
			Time:     runStartTime,
			RunID:    runID,
			Device:   outcome.Device,
			Duration: outcome.Duration,
			Success:  outcome.Success(),
			Outcome:  outcome.Kind.String(),
		})
	}

	// End-of-run distinct-failure report, failures are data, not fatal
	failureCount := inspect.ReportSummary(runLog)
	log.Infof("Inspection run done, %v devices inspected, %v failing, took %.1f seconds",
		len(outcomes), failureCount, time.Since(runStartTime).Seconds())

	// Stop internal services and wait for them to finish
	shutdown.Shutdown()
	waitGroup.Wait()
}
