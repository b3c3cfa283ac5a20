package emitter

import (
	"context"
	"math/rand"
	"sync"
	"time"

	log "github.com/freundallein/sqstransport/chassis/logging"
	"github.com/freundallein/sqstransport/chassis/protocol"
	"github.com/freundallein/sqstransport/chassis/storage"
	"github.com/freundallein/sqstransport/handlers"
)

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

// Publisher is the producer side used by the emitter.
type Publisher interface {
	Emit(ctx context.Context, pattern protocol.Pattern, data interface{}) (string, error)
}

// Config ...
type Config struct {
	Publisher Publisher
	// Repository is optional; without it dummy events are emitted.
	Repository storage.ObjectRepository
	Workers    int
	Interval   time.Duration
}

func randSeq(rnd *rand.Rand, n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rnd.Intn(len(letters))]
	}
	return string(b)
}

func emit(ctx context.Context, cfg *Config, rnd *rand.Rand) (string, error) {
	data := map[string]string{"random": randSeq(rnd, 10)}
	if cfg.Repository == nil {
		return cfg.Publisher.Emit(ctx, protocol.StringPattern(handlers.PatternDummy), data)
	}
	objectID, err := cfg.Repository.Create(ctx, data)
	if err != nil {
		return "", err
	}
	return cfg.Publisher.Emit(ctx, protocol.StringPattern(handlers.PatternExport), handlers.ExportRequest{ObjectID: objectID})
}

func worker(ctx context.Context, cfg *Config, workerID int, group *sync.WaitGroup) {
	defer group.Done()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	for {
		select {
		case <-ctx.Done():
			log.WithFields(log.Fields{
				"event":  "ctx_canceled",
				"worker": workerID,
			}).Info("exit goroutine")
			return
		case <-time.After(cfg.Interval):
			id, err := emit(ctx, cfg, rnd)
			if err != nil {
				log.WithFields(log.Fields{
					"event":  "emit_failed",
					"worker": workerID,
				}).Error(err)
				continue
			}
			log.WithFields(log.Fields{
				"event":     "emit_message",
				"worker":    workerID,
				"messageID": id,
			}).Debug("event emitted")
		}
	}
}

// Run ...
func Run(ctx context.Context, cfg *Config, group *sync.WaitGroup) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	log.WithFields(log.Fields{
		"event": "start_service",
	}).Info("starting ", cfg.Workers, " workers")
	for wrk := 1; wrk <= cfg.Workers; wrk++ {
		group.Add(1)
		go worker(ctx, cfg, wrk, group)
	}
}
