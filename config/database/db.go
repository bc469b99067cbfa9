package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"consultaprocessual/pkg/logger"

	_ "github.com/lib/pq"
)

const (
	pingAttempts = 5
	pingWait     = 2 * time.Second
)

// Connect opens the postgres workbook database and waits until it answers a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}
	if err := WaitForPing(ctx, db, pingAttempts, pingWait); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// WaitForPing retries a few times in case of temporary DNS/network blips.
func WaitForPing(ctx context.Context, db *sql.DB, attempts int, wait time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			logger.Sugar.Info("Successfully connected to the database")
			return nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in %s... (%v)", wait, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("could not connect to database after %d attempts: %w", attempts, err)
}
