// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	store "github.com/mdhender/rewriter/stores/sqlite"
)

func newRun(output, policy, errCode string, started time.Time) *store.Run {
	return &store.Run{
		Rule:       "lookup",
		Input:      "scripts/cpp_lookup_table.txt",
		Output:     output,
		Policy:     policy,
		Lines:      16,
		Records:    256,
		Unmatched:  2,
		Bytes:      14336,
		Digest:     "d1g35t",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Millisecond),
		ErrorCode:  errCode,
	}
}

func TestInsertAndGetRun(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore()
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	started := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	run := newRun("scripts/out.txt", "truncate", "", started)
	id, err := s.InsertRun(ctx, run)
	if err != nil {
		t.Fatalf("insert run: %v", err)
	}
	if id == 0 || run.ID != id {
		t.Fatalf("insert run: id = %d, run.ID = %d", id, run.ID)
	}

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Rule != "lookup" || got.Output != "scripts/out.txt" || got.Policy != "truncate" {
		t.Errorf("got %+v", got)
	}
	if got.Records != 256 || got.Unmatched != 2 || got.Bytes != 14336 || got.Digest != "d1g35t" {
		t.Errorf("counters: got %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Failed() {
		t.Errorf("Failed() = true, want false")
	}

	if _, err := s.GetRun(ctx, id+100); err == nil {
		t.Errorf("get missing run: want error, got nil")
	}
}

func TestListRunsAndLastRunFor(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore()
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	started := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, run := range []*store.Run{
		newRun("out.txt", "truncate", "", started),
		newRun("out.txt", "append", "", started.Add(time.Minute)),
		newRun("other.txt", "truncate", "", started.Add(2*time.Minute)),
		newRun("out.txt", "check", "", started.Add(3*time.Minute)),
		newRun("out.txt", "truncate", "OPEN_OUTPUT", started.Add(4*time.Minute)),
	} {
		if _, err := s.InsertRun(ctx, run); err != nil {
			t.Fatalf("insert run %d: %v", i, err)
		}
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 5 {
		t.Fatalf("len(runs) = %d, want 5", len(runs))
	}
	if runs[0].ID < runs[len(runs)-1].ID {
		t.Errorf("runs not newest first: first id %d, last id %d", runs[0].ID, runs[len(runs)-1].ID)
	}
	if !runs[0].Failed() || runs[0].ErrorCode != "OPEN_OUTPUT" {
		t.Errorf("newest run: got error code %q, want OPEN_OUTPUT", runs[0].ErrorCode)
	}

	limited, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}

	last, err := s.LastRunFor(ctx, "out.txt")
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if last == nil || last.Policy != "append" {
		t.Fatalf("last run = %+v, want the append run", last)
	}

	none, err := s.LastRunFor(ctx, "never-written.txt")
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if none != nil {
		t.Errorf("last run = %+v, want nil", none)
	}
}

func TestInitDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	if _, err := store.NewSQLiteStoreWithConfig(store.StoreConfig{Path: path}); err == nil {
		t.Fatalf("open missing database: want error, got nil")
	}
	if err := store.InitDatabase(path); err != nil {
		t.Fatalf("init database: %v", err)
	}
	if err := store.InitDatabase(path); err == nil {
		t.Errorf("init existing database: want error, got nil")
	}

	s, err := store.NewSQLiteStoreWithConfig(store.StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if _, err := s.InsertRun(ctx, newRun("out.txt", "truncate", "", time.Now())); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := store.CompactDatabase(path); err != nil {
		t.Fatalf("compact database: %v", err)
	}

	s, err = store.NewSQLiteStoreWithConfig(store.StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer s.Close()
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("len(runs) = %d, want 1", len(runs))
	}
}

func TestInsertRun_RejectsUnknownPolicy(t *testing.T) {
	s, err := store.NewSQLiteStore()
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()
	if _, err := s.InsertRun(context.Background(), newRun("out.txt", "sideways", "", time.Now())); err == nil {
		t.Errorf("insert run: want constraint error, got nil")
	}
}
