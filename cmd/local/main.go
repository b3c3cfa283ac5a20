package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	log "github.com/freundallein/sqstransport/chassis/logging"

	"github.com/freundallein/sqstransport/chassis/config"
	"github.com/freundallein/sqstransport/chassis/monkey"
	"github.com/freundallein/sqstransport/chassis/queue"
	"github.com/freundallein/sqstransport/consumer"
	"github.com/freundallein/sqstransport/emitter"
	"github.com/freundallein/sqstransport/handlers"
	"github.com/freundallein/sqstransport/producer"
	"github.com/freundallein/sqstransport/router"
)

// Runs emitter, producer and consumer against an in-process queue.
func main() {
	appCfg := &config.AppConfig{}
	if os.Getenv("CFG_PATH") != "" {
		var err error
		appCfg, err = config.Read()
		if err != nil {
			log.WithFields(log.Fields{
				"event": "config_read_failed",
			}).Fatal(err)
		}
	}
	log.Init("local", appCfg.Consumer.LogLevel)

	queueCfg := appCfg.QueueConfig()
	memory := queue.NewMemory(queueCfg.VisibilityTimeout)
	handle := memory.CreateQueue(queueCfg.Name)
	backend := monkey.Wrap(memory, appCfg.Chaos.ErrorChance)

	routes := router.NewRegistry()
	handlers.Register(routes, nil)

	server := consumer.New(&consumer.Config{
		Queue:    queueCfg,
		Backend:  backend,
		Registry: routes,
	})
	client := producer.New(&producer.Config{
		Queue:   queueCfg,
		Backend: backend,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		log.WithFields(log.Fields{
			"event": "connect_failed",
		}).Fatal(err)
	}
	defer client.Close()

	workers := appCfg.Producer.Workers
	if workers <= 0 {
		workers = 1
	}
	interval := time.Duration(appCfg.Producer.Interval) * time.Millisecond

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Listen(gctx); err != consumer.ErrClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		var emitters sync.WaitGroup
		emitter.Run(gctx, &emitter.Config{
			Publisher: client,
			Workers:   workers,
			Interval:  interval,
		}, &emitters)
		emitters.Wait()
		return nil
	})
	group.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(time.Second * 5):
				visible, inFlight := memory.Depth(handle)
				log.WithFields(log.Fields{
					"event":    "queue_depth",
					"visible":  visible,
					"inFlight": inFlight,
				}).Info("queue depth")
			}
		}
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	log.WithFields(log.Fields{
		"event": "ctx_cancel",
	}).Info("received syscall")
	server.Close()
	cancel()
	if err := group.Wait(); err != nil {
		log.WithFields(log.Fields{
			"event": "shutdown_failed",
		}).Error(err)
	}
}
