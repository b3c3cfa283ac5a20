package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/freundallein/sqstransport/chassis/logging"

	"github.com/freundallein/sqstransport/chassis/config"
	"github.com/freundallein/sqstransport/chassis/metrics"
	"github.com/freundallein/sqstransport/chassis/monkey"
	"github.com/freundallein/sqstransport/chassis/queue"
	"github.com/freundallein/sqstransport/chassis/storage"
	"github.com/freundallein/sqstransport/emitter"
	"github.com/freundallein/sqstransport/producer"
)

func main() {
	appCfg, err := config.Read()
	if err != nil {
		log.WithFields(log.Fields{
			"event": "config_read_failed",
		}).Fatal(err)
	}
	log.Init("producer", appCfg.Producer.LogLevel)
	log.WithFields(log.Fields{
		"event": "init_service",
	}).Info("service initialized")

	queueCfg := appCfg.QueueConfig()
	backend, err := queue.InitAWSQueue(queueCfg)
	if err != nil {
		log.WithFields(log.Fields{
			"event": "init_queue_failed",
		}).Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	collectors, err := metrics.New(registry)
	if err != nil {
		log.WithFields(log.Fields{
			"event": "init_metrics_failed",
		}).Fatal(err)
	}

	client := producer.New(&producer.Config{
		Queue:   queueCfg,
		Backend: monkey.Wrap(backend, appCfg.Chaos.ErrorChance),
		Metrics: collectors,
	})
	if err := client.Connect(ctx); err != nil {
		log.WithFields(log.Fields{
			"event": "connect_failed",
		}).Fatal(err)
	}
	defer client.Close()

	cfg := &emitter.Config{
		Publisher: client,
		Workers:   appCfg.Producer.Workers,
		Interval:  time.Duration(appCfg.Producer.Interval) * time.Millisecond,
	}
	if appCfg.Storage.DSN != "" {
		repo, err := storage.InitPGRepository(ctx, storage.Config{DSN: appCfg.Storage.DSN})
		if err != nil {
			log.WithFields(log.Fields{
				"event": "init_storage_failed",
			}).Fatal(err)
		}
		defer repo.Close()
		cfg.Repository = repo
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	var group sync.WaitGroup
	emitter.Run(ctx, cfg, &group)

	mx := mux.NewRouter()
	mx.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    appCfg.Metrics.Address,
		Handler: mx,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen: ", err)
		}
	}()
	<-done
	log.WithFields(log.Fields{
		"event": "ctx_cancel",
	}).Info("received syscall")
	cancel()
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error("server shutdown failed: ", err)
	}
	group.Wait()
}
