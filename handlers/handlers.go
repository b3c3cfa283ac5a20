package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	log "github.com/freundallein/sqstransport/chassis/logging"
	"github.com/freundallein/sqstransport/chassis/protocol"
	"github.com/freundallein/sqstransport/chassis/storage"
	"github.com/freundallein/sqstransport/response"
	"github.com/freundallein/sqstransport/router"
)

const (
	// PatternExport copies an object into the export table.
	PatternExport = "object.export"
	// PatternDummy succeeds without side effects.
	PatternDummy = "dummy"
)

// PatternEcho is a structured pattern; the payload array is streamed back item by item.
var PatternEcho = protocol.MustPattern(map[string]string{"cmd": "echo"})

// ExportRequest is the payload of PatternExport.
type ExportRequest struct {
	ObjectID int `json:"objectID"`
}

// Register binds the bundled handlers. Export is skipped without a repository.
func Register(registry *router.Registry, repo storage.ObjectRepository) {
	if repo != nil {
		registry.Handle(PatternExport, Export(repo))
	}
	registry.Handle(PatternDummy, Dummy)
	registry.Register(PatternEcho, Echo)
}

// Dummy - ...
func Dummy(ctx context.Context, data json.RawMessage) (interface{}, error) {
	log.WithFields(log.Fields{
		"event": "dummy_processed",
	}).Debug(string(data))
	return map[string]string{"result": "success"}, nil
}

// Echo streams every element of a JSON array payload, or the payload itself
// when it is not an array.
func Echo(ctx context.Context, data json.RawMessage) (interface{}, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return data, nil
	}
	out := make(chan response.Result)
	go func() {
		defer close(out)
		for _, item := range items {
			select {
			case out <- response.Result{Value: item}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return (<-chan response.Result)(out), nil
}

// Export - ...
func Export(repo storage.ObjectRepository) router.Handler {
	return func(ctx context.Context, data json.RawMessage) (interface{}, error) {
		var request ExportRequest
		if err := json.Unmarshal(data, &request); err != nil {
			return nil, fmt.Errorf("decode export request: %w", err)
		}
		if request.ObjectID == 0 {
			return nil, errors.New("no objectID supported")
		}
		objectID := strconv.Itoa(request.ObjectID)
		object, err := repo.Get(ctx, request.ObjectID)
		if err != nil {
			log.WithFields(log.Fields{
				"event":    "select_object_failed",
				"objectID": objectID,
			}).Error(err)
			return nil, err
		}
		err = repo.Export(ctx, object)
		if err != nil && !errors.Is(err, storage.ErrDuplicate) {
			log.WithFields(log.Fields{
				"event":    "insert_object_failed",
				"objectID": objectID,
			}).Error(err)
			return nil, err
		}
		if errors.Is(err, storage.ErrDuplicate) {
			log.WithFields(log.Fields{
				"event":    "duplicated_export",
				"objectID": objectID,
			}).Warn("object already exported")
		}
		log.WithFields(log.Fields{
			"event":    "object_processed",
			"objectID": objectID,
		}).Info("successfully export object")
		return map[string]string{"result": "success", "objectID": objectID}, nil
	}
}
