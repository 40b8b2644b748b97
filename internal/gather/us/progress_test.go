package us

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProgressTrackerMarkEmpty(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := pt.MarkEmpty([]string{"PETR4", "VALE3", "ITUB4"}); err != nil {
		t.Fatal(err)
	}
	pt.Close()

	// Reload and verify.
	pt2, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer pt2.Close()

	for _, sym := range []string{"PETR4", "VALE3", "ITUB4"} {
		if !pt2.IsEmpty(sym) {
			t.Errorf("expected %q to be empty after reload", sym)
		}
	}
	if pt2.IsEmpty("BBAS3") {
		t.Error("BBAS3 should not be empty")
	}
}

func TestProgressTrackerCompleted(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer pt.Close()

	if pt.IsCompleted("2025-02-10") {
		t.Error("should not be completed before marking")
	}

	if err := pt.MarkCompleted("2025-02-10"); err != nil {
		t.Fatal(err)
	}

	if !pt.IsCompleted("2025-02-10") {
		t.Error("should be completed after marking")
	}

	if pt.IsCompleted("2025-02-11") {
		t.Error("different date should not be completed")
	}
}

func TestProgressTrackerResume(t *testing.T) {
	dir := t.TempDir()

	// Simulate partial run: write some entries directly.
	path := filepath.Join(dir, ".empty-tickers")
	if err := os.WriteFile(path, []byte("WEGE3\nABEV3\nB3SA3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer pt.Close()

	if !pt.IsEmpty("WEGE3") {
		t.Error("WEGE3 should be loaded from partial run")
	}
	if !pt.IsEmpty("ABEV3") {
		t.Error("ABEV3 should be loaded from partial run")
	}

	// Add more.
	if err := pt.MarkEmpty([]string{"MGLU3"}); err != nil {
		t.Fatal(err)
	}
	if !pt.IsEmpty("MGLU3") {
		t.Error("MGLU3 should be empty after marking")
	}
}

func TestProgressTrackerReset(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := pt.MarkEmpty([]string{"PETR4"}); err != nil {
		t.Fatal(err)
	}
	if !pt.IsEmpty("PETR4") {
		t.Fatal("PETR4 should be empty")
	}

	if err := pt.Reset(); err != nil {
		t.Fatal(err)
	}

	if pt.IsEmpty("PETR4") {
		t.Error("PETR4 should not be empty after reset")
	}

	// .empty-tickers file should be gone (or empty).
	path := filepath.Join(dir, ".empty-tickers")
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(data) > 0 {
		t.Error(".empty-tickers file should be empty after reset")
	}

	pt.Close()
}
