package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"serial-mqtt-bridge/config"
	"serial-mqtt-bridge/internal/bridge"
	"serial-mqtt-bridge/internal/broker"
	"serial-mqtt-bridge/internal/broker/mqtt"
	"serial-mqtt-bridge/internal/broker/nats"
	"serial-mqtt-bridge/internal/logger"
	"serial-mqtt-bridge/internal/metrics"
	"serial-mqtt-bridge/internal/serial"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (empty = built-in defaults)")

	// Optional override flags
	deviceOverride := flag.String("device", "", "override serial device, or tcp://host:port (empty = use config)")
	brokerOverride := flag.String("broker", "", "override broker host (empty = use config)")
	topicOverride := flag.String("topic", "", "override publish topic (empty = use config)")
	logLevelOverride := flag.String("log-level", "", "override log level (empty = use config)")
	listPorts := flag.Bool("list-ports", false, "list available serial ports and exit")

	flag.Parse()

	if *listPorts {
		ports, err := serial.List()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(*deviceOverride, *brokerOverride, *topicOverride, *logLevelOverride)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	var metricsService *metrics.Metrics
	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		metricsServer = metrics.NewServer(cfg.Metrics.Address, cfg.Metrics.Path, reg)
		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	connect := func() (broker.Publisher, error) {
		switch cfg.Broker.Type {
		case config.BrokerTypeNATS:
			b, err := nats.NewBroker(cfg, logger, metricsService)
			if err != nil {
				return nil, err
			}
			return b, nil
		default:
			b, err := mqtt.NewBroker(cfg, logger, metricsService)
			if err != nil {
				return nil, err
			}
			return b, nil
		}
	}
	open := func() (serial.Port, error) {
		return serial.Open(cfg.Serial)
	}

	br := bridge.New(cfg, connect, open, logger, metricsService, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handlers
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigChan {
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, flushing logs")
				if js, err := br.Stats().GetStatsJSON(); err == nil {
					logger.Info("bridge stats", "stats", string(js))
				}
				logger.Sync()
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info("shutting down...", "signal", sig.String())
				cancel()
				br.Close()
				return
			}
		}
	}()

	logger.Info("serial-mqtt-bridge starting",
		"device", cfg.Serial.Device,
		"baud", cfg.Serial.BaudRate,
		"broker", cfg.Broker.BrokerURL(),
		"brokerType", cfg.Broker.Type,
		"topic", cfg.Bridge.Topic,
		"metricsEnabled", cfg.Metrics.Enabled)

	if err := br.Start(ctx); err != nil {
		shutdownMetrics(logger, metricsServer)
		logger.Fatal("failed to start bridge", "error", err)
	}

	runErr := br.Run(ctx)
	br.Close()
	signal.Stop(sigChan)

	shutdownMetrics(logger, metricsServer)

	if runErr != nil {
		logger.Fatal("bridge stopped", "error", runErr)
	}
	logger.Info("bridge stopped")
}

func shutdownMetrics(logger *logger.Logger, srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown metrics server", "error", err)
	}
}
