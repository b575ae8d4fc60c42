package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/loykin/toystudio/internal/history"
)

// Sink writes history events to a SQLite database.
type Sink struct {
	db *sqlx.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + history.DefaultTable + `(
			occurred_ns INTEGER NOT NULL,
			type TEXT NOT NULL,
			product TEXT NOT NULL,
			operation_id TEXT NOT NULL,
			pid INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_product_history_product ON ` + history.DefaultTable + `(product);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+history.DefaultTable+`(occurred_ns, type, product, operation_id, pid, error)
		VALUES(?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC().UnixNano(), string(e.Type), e.Product, e.OperationID, e.PID, e.Error)
	return err
}

type row struct {
	OccurredNS  int64  `db:"occurred_ns"`
	Type        string `db:"type"`
	Product     string `db:"product"`
	OperationID string `db:"operation_id"`
	PID         int    `db:"pid"`
	Error       string `db:"error"`
}

// Query returns events newest first.
func (s *Sink) Query(ctx context.Context, f history.Filter) ([]history.Event, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT occurred_ns, type, product, operation_id, pid, error
		FROM `+history.DefaultTable+`
		WHERE (? = '' OR product = ?)
		ORDER BY occurred_ns DESC, rowid DESC
		LIMIT ?;`, f.Product, f.Product, f.EffectiveLimit())
	if err != nil {
		return nil, err
	}
	out := make([]history.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, history.Event{
			Type:        history.EventType(r.Type),
			Product:     r.Product,
			OperationID: r.OperationID,
			OccurredAt:  time.Unix(0, r.OccurredNS).UTC(),
			PID:         r.PID,
			Error:       r.Error,
		})
	}
	return out, nil
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
