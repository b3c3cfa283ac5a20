package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicate is returned when an object was already exported.
var ErrDuplicate = errors.New("duplicated object")

// Object is a row of t_object; Export copies it into t_exported_object.
type Object struct {
	ID        int
	Data      map[string]string
	CreatedDt time.Time
}

// Config - ...
type Config struct {
	DSN string
}

// ObjectRepository stores business objects and their exported copies.
type ObjectRepository interface {
	Create(ctx context.Context, data map[string]string) (int, error)
	Get(ctx context.Context, id int) (*Object, error)
	Export(ctx context.Context, object *Object) error
}
