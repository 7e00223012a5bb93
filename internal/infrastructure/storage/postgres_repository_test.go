package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"ListingConverter/internal/domain"
	"ListingConverter/internal/ports"
)

func TestInsertQuery(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	query, args, err := insertQuery(ports.ConversionRecord{
		ActorID:     "seller-1",
		SourceURL:   "https://www.amazon.com/dp/B0TEST1234",
		Source:      domain.MarketplaceAmazon,
		Status:      "failed",
		Step:        "checking",
		StartedAt:   now,
		CompletedAt: now,
	})
	if err != nil {
		t.Fatalf("build insert: %v", err)
	}
	if !strings.HasPrefix(query, "INSERT INTO conversions (actor_id,source_url,") {
		t.Fatalf("unexpected query: %s", query)
	}
	if !strings.Contains(query, "$14") || strings.Contains(query, "?") {
		t.Fatalf("expected dollar placeholders: %s", query)
	}
	if len(args) != len(columns) {
		t.Fatalf("expected %d args, got %d", len(columns), len(args))
	}
	if args[0] != "seller-1" || args[2] != "amazon" {
		t.Fatalf("unexpected args: %v", args[:3])
	}
}

func TestListQuery(t *testing.T) {
	t.Parallel()

	query, args, err := listQuery(ports.ConversionFilter{ActorID: "seller-1", Status: "completed", Offset: 20})
	if err != nil {
		t.Fatalf("build list: %v", err)
	}
	for _, want := range []string{
		"FROM conversions",
		"actor_id = $1",
		"status = $2",
		"ORDER BY completed_at DESC, id DESC",
		"LIMIT 50",
		"OFFSET 20",
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("query %q missing %q", query, want)
		}
	}
	if len(args) != 2 || args[0] != "seller-1" || args[1] != "completed" {
		t.Fatalf("unexpected args: %v", args)
	}

	query, args, err = listQuery(ports.ConversionFilter{Limit: 10000})
	if err != nil {
		t.Fatalf("build list: %v", err)
	}
	if strings.Contains(query, "status = ") {
		t.Fatalf("status filter must be omitted when empty: %s", query)
	}
	if !strings.Contains(query, "LIMIT 500") || len(args) != 1 {
		t.Fatalf("limit must be capped: %s %v", query, args)
	}
}

func TestNilDatabaseIsNoop(t *testing.T) {
	t.Parallel()

	repo := NewPostgresRepository(nil)
	if err := repo.SaveConversion(context.Background(), ports.ConversionRecord{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	rows, err := repo.ListConversions(context.Background(), ports.ConversionFilter{})
	if err != nil || len(rows) != 0 {
		t.Fatalf("list: %v %v", rows, err)
	}
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
}
