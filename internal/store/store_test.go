package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddProcessedURLUpsertsOnURL(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddProcessedURL(ProcessedURL{URL: "https://a.example", Source: "csv", Status: "failed"}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := s.AddProcessedURL(ProcessedURL{URL: "https://a.example", Source: "csv", Status: "success", FieldsFilled: []string{"#email"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	processed, err := s.IsURLProcessed("https://a.example")
	if err != nil || !processed {
		t.Fatalf("IsURLProcessed = %v, %v", processed, err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM processed_urls`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row after upsert, got %d", count)
	}
}

func TestEnqueueAndMarkScrapedURL(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueScrapedURL("https://b.example", "ad1", "acme"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	pending, err := s.PendingScrapedURLs(10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v", pending, err)
	}

	if err := s.MarkURLProcessed("https://b.example"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	pending, err = s.PendingScrapedURLs(10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending after mark = %v, %v", pending, err)
	}
}

func TestSaveAPISessionCosts(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveAPISessionCosts(ApiSessionSummary{
		Model:        "gpt-4o-mini",
		InputTokens:  100,
		OutputTokens: 50,
		Cost:         "0.002",
		APICalls:     3,
	})
	if err != nil {
		t.Fatalf("SaveAPISessionCosts: %v", err)
	}
}

func TestMigrationAddsErrorCategoryColumn(t *testing.T) {
	s := openTestStore(t)
	has, err := s.hasColumn("processed_urls", "error_category")
	if err != nil {
		t.Fatalf("hasColumn: %v", err)
	}
	if !has {
		t.Fatalf("expected error_category column to exist after migration")
	}
}
