package forward

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/uika/tsugu-go-bot/pkg/tsugudto"
)

// PostgresAudit keeps a local record of every room number this instance
// forwarded, for operators who want history beyond the bulletin backend.
type PostgresAudit struct {
	db *sql.DB
}

func NewPostgresAudit(databaseURL string) (*PostgresAudit, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &PostgresAudit{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS forwarded_rooms (
        id BIGSERIAL PRIMARY KEY,
        number BIGINT NOT NULL,
        raw_message TEXT NOT NULL,
        source TEXT NOT NULL,
        user_id TEXT NOT NULL,
        user_name TEXT NOT NULL,
        sent_at TIMESTAMPTZ NOT NULL
    )`)
	return err
}

func (a *PostgresAudit) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *PostgresAudit) RecordForward(ctx context.Context, room tsugudto.StationRoom) error {
	if a == nil || a.db == nil {
		return nil
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO forwarded_rooms (number, raw_message, source, user_id, user_name, sent_at)
         VALUES ($1,$2,$3,$4,$5,$6)`,
		room.Number, room.RawMessage, room.Source, room.UserID, room.UserName,
		time.UnixMilli(room.Time).UTC(),
	)
	return err
}
