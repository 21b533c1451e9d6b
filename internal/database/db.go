package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/go-pos-store/internal/config"
)

const pingTimeout = 5 * time.Second

// NewConnection opens the pool and waits for Postgres to answer, trying up to
// cfg.ConnectAttempts times one second apart.
func NewConnection(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	attempts := max(cfg.ConnectAttempts, 1)
	for attempt := 1; ; attempt++ {
		err = ping(db)
		if err == nil {
			return db, nil
		}
		if attempt >= attempts {
			break
		}
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("ping database after %d attempt(s): %w", attempts, err)
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return db.PingContext(ctx)
}
