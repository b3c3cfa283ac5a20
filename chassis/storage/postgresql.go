package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

// PGRepository - ...
type PGRepository struct {
	pool *pgxpool.Pool
}

// InitPGRepository - ...
func InitPGRepository(ctx context.Context, cfg Config) (*PGRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	return &PGRepository{
		pool: pool,
	}, nil
}

// Create inserts a new object and returns its id.
func (repo *PGRepository) Create(ctx context.Context, data map[string]string) (int, error) {
	var insertedID int
	query := `insert into t_object(data) values ($1) returning id`
	err := repo.pool.QueryRow(ctx, query, data).Scan(&insertedID)
	if err != nil {
		return 0, err
	}
	return insertedID, nil
}

// Get - ...
func (repo *PGRepository) Get(ctx context.Context, id int) (*Object, error) {
	var object Object
	query := `select id, data, created_dt from t_object where id=$1`
	err := repo.pool.QueryRow(ctx, query, id).Scan(&object.ID, &object.Data, &object.CreatedDt)
	if err != nil {
		return nil, err
	}
	return &object, nil
}

// Export copies the object into the export table. A repeated export of the
// same object returns ErrDuplicate.
func (repo *PGRepository) Export(ctx context.Context, object *Object) error {
	query := `insert into t_exported_object(id, data) values ($1, $2)`
	_, err := repo.pool.Exec(ctx, query, object.ID, object.Data)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Close ...
func (repo *PGRepository) Close() {
	repo.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
