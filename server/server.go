package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/golang/glog"
	"github.com/prebid/adstxt-validator/config"
	"github.com/prebid/adstxt-validator/metrics"
	metricsconfig "github.com/prebid/adstxt-validator/metrics/config"
)

// Listen serves the API, admin and optional Prometheus endpoints until the process receives SIGTERM or SIGINT.
func Listen(cfg *config.Configuration, handler http.Handler, adminHandler http.Handler, metricsEngine *metricsconfig.DetailedMetricsEngine) error {
	stopSignals := make(chan os.Signal, 1)
	signal.Notify(stopSignals, syscall.SIGTERM, syscall.SIGINT)

	// Fan any process-stopper signals out to each server for graceful shutdowns.
	stopAdmin := make(chan os.Signal)
	stopMain := make(chan os.Signal)
	stopPrometheus := make(chan os.Signal)
	done := make(chan struct{})

	mainServer := newMainServer(cfg, handler)
	mainListener, err := newListener(mainServer.Addr, metricsEngine)
	if err != nil {
		return fmt.Errorf("main server: %v", err)
	}
	adminServer := newAdminServer(cfg, adminHandler)
	adminListener, err := newListener(adminServer.Addr, nil)
	if err != nil {
		mainListener.Close()
		return fmt.Errorf("admin server: %v", err)
	}

	go shutdownAfterSignals(mainServer, stopMain, done)
	go shutdownAfterSignals(adminServer, stopAdmin, done)
	go runServer(mainServer, "Main", mainListener)
	go runServer(adminServer, "Admin", adminListener)

	if cfg.Metrics.Type == config.MetricsTypePrometheus && cfg.Metrics.Prometheus.Port != 0 {
		prometheusServer := newPrometheusServer(cfg, metricsEngine)
		prometheusListener, err := newListener(prometheusServer.Addr, nil)
		if err != nil {
			glog.Errorf("Error listening for TCP connections on %s for prometheus server: %v", prometheusServer.Addr, err)
		} else {
			go shutdownAfterSignals(prometheusServer, stopPrometheus, done)
			go runServer(prometheusServer, "Prometheus", prometheusListener)
			wait(stopSignals, done, stopMain, stopAdmin, stopPrometheus)
			return nil
		}
	}

	wait(stopSignals, done, stopMain, stopAdmin)
	return nil
}

func newAdminServer(cfg *config.Configuration, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    cfg.Host + ":" + strconv.Itoa(cfg.AdminPort),
		Handler: handler,
	}
}

func newMainServer(cfg *config.Configuration, handler http.Handler) *http.Server {
	serverHandler := handler
	if cfg.EnableGzip {
		serverHandler = gziphandler.GzipHandler(handler)
	}

	// A cold validation fetches every advertising system's sellers.json, so writes get a generous deadline.
	return &http.Server{
		Addr:         cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler:      serverHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
}

func runServer(server *http.Server, name string, listener net.Listener) {
	glog.Infof("%s server starting on: %s", name, server.Addr)
	err := server.Serve(listener)
	if err != http.ErrServerClosed {
		glog.Errorf("%s server quit with error: %v", name, err)
	}
}

func newListener(address string, metricEngine metrics.MetricsEngine) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("error listening for TCP connections on %s: %v", address, err)
	}

	casted, ok := ln.(*net.TCPListener)
	if !ok {
		glog.Warningf("net.Listen(\"tcp\", %q) didn't return a TCPListener, connections will not be monitored", address)
		return ln, nil
	}
	return &monitorableListener{casted, metricEngine}, nil
}

func wait(inbound <-chan os.Signal, done <-chan struct{}, outbound ...chan<- os.Signal) {
	sig := <-inbound

	for i := 0; i < len(outbound); i++ {
		go sendSignal(outbound[i], sig)
	}

	for i := 0; i < len(outbound); i++ {
		<-done
	}
}

func shutdownAfterSignals(server *http.Server, stopper <-chan os.Signal, done chan<- struct{}) {
	sig := <-stopper

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	glog.Infof("Stopping %s because of signal: %s", server.Addr, sig.String())
	if err := server.Shutdown(ctx); err != nil {
		glog.Errorf("Failed to shutdown %s: %v", server.Addr, err)
	}
	done <- struct{}{}
}

func sendSignal(to chan<- os.Signal, sig os.Signal) {
	to <- sig
}
