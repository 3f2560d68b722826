package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/Dr-Twilight/port-status-inspection/common"
	"github.com/Dr-Twilight/port-status-inspection/util"
)

// StartServer - Start HTTP server in the background. Disabled when no
// endpoint is configured.
func StartServer(config common.Config, registry *prometheus.Registry, waitGroup *sync.WaitGroup, shutdown *util.ShutdownChannelDistributor) {
	if config.HTTPEndpoint == "" {
		return
	}

	shutdownChannel := make(chan bool, 1)
	if !shutdown.AddListener(shutdownChannel) {
		return
	}
	waitGroup.Add(1)

	// Configure
	var mainServeMux http.ServeMux
	mainServeMux.HandleFunc("/", handleOtherRequest)
	mainServeMux.HandleFunc("/metrics", makeMetricsHandler(registry))
	server := &http.Server{
		Addr:    config.HTTPEndpoint,
		Handler: &mainServeMux,
	}

	// Run
	var shutdownContextCancel context.CancelFunc = nil
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server failed")
		}
		// Cancel shutdown timer
		if shutdownContextCancel != nil {
			shutdownContextCancel()
		}
		log.Info("HTTP server stopped")
		waitGroup.Done()
	}()

	// Shutdown
	go func() {
		<-shutdownChannel
		var shutdownContext context.Context
		shutdownContext, shutdownContextCancel = context.WithTimeout(context.Background(), 5*time.Second)
		server.Shutdown(shutdownContext)
	}()

	log.Infof("HTTP server started: %v", config.HTTPEndpoint)
}

func handleOtherRequest(response http.ResponseWriter, request *http.Request) {
	if request.URL.Path == "/" {
		fmt.Fprintf(response, "%s version %s by %s.\n", common.AppName, common.AppVersion, common.AppAuthor)
		fmt.Fprintf(response, "\nPaths:\n")
		fmt.Fprintf(response, "- Metrics: /metrics\n")
	} else {
		http.Error(response, "404 - Page not found.\n", 404)
	}
}

func makeMetricsHandler(registry *prometheus.Registry) http.HandlerFunc {
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return func(response http.ResponseWriter, request *http.Request) {
		log.WithFields(log.Fields{
			"endpoint": "metrics",
			"client":   request.RemoteAddr,
			"url":      request.URL,
		}).Trace("Request")
		handler.ServeHTTP(response, request)
	}
}
