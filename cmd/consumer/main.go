package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/freundallein/sqstransport/chassis/logging"

	"github.com/freundallein/sqstransport/chassis/config"
	"github.com/freundallein/sqstransport/chassis/metrics"
	"github.com/freundallein/sqstransport/chassis/monkey"
	"github.com/freundallein/sqstransport/chassis/queue"
	"github.com/freundallein/sqstransport/chassis/storage"
	"github.com/freundallein/sqstransport/consumer"
	"github.com/freundallein/sqstransport/handlers"
	"github.com/freundallein/sqstransport/router"
)

func main() {
	appCfg, err := config.Read()
	if err != nil {
		log.WithFields(log.Fields{
			"event": "config_read_failed",
		}).Fatal(err)
	}
	log.Init("consumer", appCfg.Consumer.LogLevel)
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

	var repo storage.ObjectRepository
	if appCfg.Storage.DSN != "" {
		pgRepo, err := storage.InitPGRepository(ctx, storage.Config{DSN: appCfg.Storage.DSN})
		if err != nil {
			log.WithFields(log.Fields{
				"event": "init_storage_failed",
			}).Fatal(err)
		}
		defer pgRepo.Close()
		repo = pgRepo
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	collectors, err := metrics.New(registry)
	if err != nil {
		log.WithFields(log.Fields{
			"event": "init_metrics_failed",
		}).Fatal(err)
	}

	routes := router.NewRegistry()
	handlers.Register(routes, repo)

	server := consumer.New(&consumer.Config{
		Queue:    queueCfg,
		Backend:  monkey.Wrap(backend, appCfg.Chaos.ErrorChance),
		Registry: routes,
		Metrics:  collectors,
	})
	if err := server.Start(ctx); err != nil {
		log.WithFields(log.Fields{
			"event": "start_consumer_failed",
		}).Fatal(err)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	var group sync.WaitGroup
	group.Add(1)
	go func() {
		defer group.Done()
		if err := server.Listen(ctx); err != nil && err != consumer.ErrClosed {
			log.WithFields(log.Fields{
				"event": "listen_failed",
			}).Error(err)
		}
	}()

	mx := mux.NewRouter()
	mx.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mx.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !server.Running() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

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
	server.Close()
	cancel()
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error("server shutdown failed: ", err)
	}
	group.Wait()
}
