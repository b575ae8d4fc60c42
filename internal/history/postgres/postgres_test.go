package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/toystudio/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	now := time.Now().UTC().Truncate(time.Microsecond)
	for i, e := range []history.Event{
		{Type: history.EventInstall, Product: "comfyui.toml", OperationID: "op-1", OccurredAt: now},
		{Type: history.EventStartup, Product: "comfyui.toml", OperationID: "op-2", OccurredAt: now.Add(time.Second), PID: 99},
		{Type: history.EventUpgrade, Product: "other.toml", OperationID: "op-3", OccurredAt: now.Add(2 * time.Second), Error: "Conflict"},
	} {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send event %d: %v", i, err)
		}
	}

	got, err := sink.Query(ctx, history.Filter{Product: "comfyui.toml"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events in history, got %d", len(got))
	}
	if got[0].OperationID != "op-2" || got[0].PID != 99 {
		t.Errorf("unexpected newest event: %+v", got[0])
	}
	if !got[1].OccurredAt.Equal(now) {
		t.Errorf("timestamp mismatch: %v vs %v", got[1].OccurredAt, now)
	}

	all, err := sink.Query(ctx, history.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if len(all) != 1 || all[0].Error != "Conflict" {
		t.Errorf("unexpected limited result: %+v", all)
	}
}

func TestNewEmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
