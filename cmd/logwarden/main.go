package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logwarden/internal/alerts"
	"logwarden/internal/api"
	"logwarden/internal/classify"
	"logwarden/internal/config"
	"logwarden/internal/delivery"
	"logwarden/internal/engine"
	"logwarden/internal/ingest"
	"logwarden/internal/logging"
	"logwarden/internal/metrics"
	"logwarden/internal/model"
	"logwarden/internal/parse"
	"logwarden/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file (json or yaml)")
	writeConfig := flag.Bool("write-config", false, "write the default config to -config and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("logwarden", version)
		return
	}
	if *writeConfig {
		if err := config.Save(*configPath, config.DefaultConfig()); err != nil {
			log.Fatalf("write config: %v", err)
		}
		fmt.Println("wrote", *configPath)
		return
	}

	mgr, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting logwarden", "version", version, "config", mgr.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	if store != nil {
		initCtx, cancelInit := context.WithTimeout(ctx, 10*time.Second)
		err := store.Init(initCtx)
		cancelInit()
		if err != nil {
			log.Fatalf("init storage: %v", err)
		}
		defer store.Close()
	}

	metricsStore := metrics.NewStore()
	alertStore := alerts.NewStore(cfg.Alerts.StoreLimit)
	calibrator := engine.NewCalibrator(cfg.Calibration, logging.Component(logger, "calibrator"))

	remote := classify.NewRemote(cfg.Classifier, logging.Component(logger, "classifier"))
	remote.StartWarmup(ctx)
	dispatcher := classify.NewDispatcher(remote, logging.Component(logger, "classifier"))

	eng := engine.NewEngine(cfg, logging.Component(logger, "engine"),
		parse.NewParser(parse.NewResolver()), dispatcher, calibrator,
		metricsStore, alertStore, store)

	if cfg.Delivery.Enabled {
		eng.SetSender(delivery.NewSender(cfg.Delivery, logging.Component(logger, "delivery")))
	}
	if cfg.Delivery.Kafka.Enabled {
		pub := delivery.NewKafkaPublisher(cfg.Delivery.Kafka, logging.Component(logger, "delivery"))
		defer pub.Close()
		eng.SetPublisher(pub)
	}
	hub := delivery.NewHub()
	eng.SetHub(hub)

	lines := make(chan model.RawLine, cfg.Ingest.ChannelBuffer)
	ingestLogger := logging.Component(logger, "ingest")
	ingest.StartKafka(ctx, mgr, lines, ingestLogger)
	ingest.StartNATS(ctx, mgr, lines, ingestLogger)
	ingest.StartFileTail(ctx, mgr, lines, ingestLogger)
	ingest.StartTCPStream(ctx, mgr, lines, ingestLogger)
	ingest.StartSyslog(ctx, mgr, lines, ingestLogger)
	ingest.StartREST(ctx, mgr, lines, ingestLogger)

	eng.Start(ctx, lines)

	srv := &api.Server{
		Config:     mgr,
		Logger:     logging.Component(logger, "api"),
		Metrics:    metricsStore,
		Alerts:     alertStore,
		Store:      store,
		Engine:     eng,
		Calibrator: calibrator,
		Hub:        hub,
		Registry:   metrics.NewRegistry(metricsStore, calibrator),
		Version:    version,
	}
	srv.Start(ctx)

	stopWatch := make(chan struct{})
	go mgr.Watch(3*time.Second, func(c *config.Config) {
		eng.UpdateConfig(c)
		logger.Info("config reloaded", "path", mgr.Path())
	}, func(err error) {
		logger.Warn("config reload failed", "error", err)
	}, stopWatch)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	close(stopWatch)
	cancel()
	eng.Wait()
}
