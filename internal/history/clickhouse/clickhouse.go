package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/toystudio/internal/history"
)

// Sink sends events to ClickHouse using the native protocol client.
type Sink struct {
	conn  driver.Conn
	table string
}

// Options selects the server and table. Empty fields fall back to ClickHouse defaults.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

func New(opts Options) (*Sink, error) {
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}
	if opts.Table == "" {
		opts.Table = history.DefaultTable
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: opts.Table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	return s.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		occurred_at DateTime64(6),
		type LowCardinality(String),
		product String,
		operation_id String,
		pid Int32,
		error String
	) ENGINE = MergeTree()
	ORDER BY (product, occurred_at)`)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, type, product, operation_id, pid, error) VALUES (?, ?, ?, ?, ?, ?)`, s.table)
	if err := s.conn.Exec(ctx, query,
		e.OccurredAt.UTC(),
		string(e.Type),
		e.Product,
		e.OperationID,
		int32(e.PID),
		e.Error,
	); err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

type row struct {
	OccurredAt  time.Time `ch:"occurred_at"`
	Type        string    `ch:"type"`
	Product     string    `ch:"product"`
	OperationID string    `ch:"operation_id"`
	PID         int32     `ch:"pid"`
	Error       string    `ch:"error"`
}

// Query returns events newest first.
func (s *Sink) Query(ctx context.Context, f history.Filter) ([]history.Event, error) {
	var rows []row
	query := fmt.Sprintf(`SELECT occurred_at, type, product, operation_id, pid, error FROM %s
		WHERE (? = '' OR product = ?) ORDER BY occurred_at DESC LIMIT ?`, s.table)
	if err := s.conn.Select(ctx, &rows, query, f.Product, f.Product, f.EffectiveLimit()); err != nil {
		return nil, fmt.Errorf("failed to query ClickHouse: %w", err)
	}
	out := make([]history.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, history.Event{
			Type:        history.EventType(r.Type),
			Product:     r.Product,
			OperationID: r.OperationID,
			OccurredAt:  r.OccurredAt.UTC(),
			PID:         int(r.PID),
			Error:       r.Error,
		})
	}
	return out, nil
}
