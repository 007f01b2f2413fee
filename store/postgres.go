package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PostgresBackend keeps scoped state in a single key/value table, one row
// per (user, scope, key), latest write wins via upsert.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// ConnectPostgres opens a pool against the configured database.
func ConnectPostgres(ctx context.Context, user, pass, host, port, dbName, options string) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"postgres://%v:%v@%v:%v/%v?%v",
		user,
		pass,
		host,
		port,
		dbName,
		options,
	)

	pool, err := pgxpool.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err.Error())
	}
	return pool, nil
}

// EnsureSchema creates the backing table if it doesn't exist yet.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := b.pool.Exec(
		ctx,
		"CREATE TABLE IF NOT EXISTS signup_state (user_id VARCHAR ( 64 ), scope VARCHAR ( 16 ), key VARCHAR ( 128 ), value TEXT, updated_at bigint, PRIMARY KEY (user_id, scope, key));",
	)
	if err != nil {
		return fmt.Errorf("failed to create signup_state table: %v", err.Error())
	}
	return nil
}

func (b *PostgresBackend) Set(ctx context.Context, userID string, scope Scope, key string, value []byte) error {
	_, err := b.pool.Exec(
		ctx,
		"insert into signup_state(user_id, scope, key, value, updated_at) values($1, $2, $3, $4, (extract(epoch from now()) * 1000)::bigint) on conflict (user_id, scope, key) do update set value = EXCLUDED.value, updated_at = EXCLUDED.updated_at",
		userID,
		string(scope),
		key,
		string(value),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user %v key %v: %v", userID, key, err.Error())
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, userID string, scope Scope, key string) ([]byte, error) {
	var value string
	err := b.pool.QueryRow(
		ctx,
		"select value from signup_state where user_id=$1 and scope=$2 and key=$3",
		userID,
		string(scope),
		key,
	).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user %v key %v: %v", userID, key, err.Error())
	}
	return []byte(value), nil
}

func (b *PostgresBackend) Remove(ctx context.Context, userID string, scope Scope, key string) error {
	_, err := b.pool.Exec(
		ctx,
		"delete from signup_state where user_id=$1 and scope=$2 and key=$3",
		userID,
		string(scope),
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user %v key %v: %v", userID, key, err.Error())
	}
	return nil
}

func (b *PostgresBackend) Clear(ctx context.Context, userID string, scope Scope) error {
	_, err := b.pool.Exec(
		ctx,
		"delete from signup_state where user_id=$1 and scope=$2",
		userID,
		string(scope),
	)
	if err != nil {
		return fmt.Errorf("failed to clear scope %v for user %v: %v", scope, userID, err.Error())
	}
	return nil
}
