package resume

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T, enabled bool) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "autoresume"), enabled, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestRecordRoundtrip(t *testing.T) {
	s := openTestStore(t, true)

	if s.IsSatisfied("unpack") {
		t.Fatal("fresh store should have no checkpoints")
	}
	if err := s.Record("unpack", "sha512:abc"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !s.IsSatisfied("unpack") {
		t.Fatal("checkpoint should be satisfied after Record")
	}
	data, ok := s.Data("unpack")
	if !ok || data != "sha512:abc" {
		t.Fatalf("Data = %q, %v; want sha512:abc, true", data, ok)
	}
}

func TestRecordEmptyData(t *testing.T) {
	s := openTestStore(t, true)
	if err := s.Record("bind", ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !s.IsSatisfied("bind") {
		t.Fatal("empty-data checkpoint should still satisfy")
	}
}

func TestDiscard(t *testing.T) {
	s := openTestStore(t, true)
	if err := s.Record("unpack_repo", "sha512:abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.Record("run_local", ""); err != nil {
		t.Fatal(err)
	}

	if err := s.Discard("unpack_repo"); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if s.IsSatisfied("unpack_repo") {
		t.Error("checkpoint should be gone after Discard")
	}
	if !s.IsSatisfied("run_local") {
		t.Error("Discard removed an unrelated checkpoint")
	}
	if err := s.Discard("unpack_repo"); err != nil {
		t.Errorf("discarding a missing checkpoint: %v", err)
	}
}

func TestClearKeepsDir(t *testing.T) {
	s := openTestStore(t, true)
	if err := s.Record("unpack", "x"); err != nil {
		t.Fatal(err)
	}
	if err := s.Record("run_local", ""); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s.IsSatisfied("unpack") || s.IsSatisfied("run_local") {
		t.Error("checkpoints should be gone after Clear")
	}
	if _, err := os.Stat(s.Dir()); err != nil {
		t.Errorf("store dir should survive Clear: %v", err)
	}
}

func TestRemove(t *testing.T) {
	s := openTestStore(t, true)
	if err := s.Record("unpack", "x"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(s.Dir()); !os.IsNotExist(err) {
		t.Errorf("store dir should be gone after Remove, err=%v", err)
	}
	// Clear on a removed store is a no-op.
	if err := s.Clear(); err != nil {
		t.Errorf("Clear after Remove: %v", err)
	}
}

func TestDisabledStore(t *testing.T) {
	s := openTestStore(t, false)

	if err := s.Record("unpack", "x"); err != nil {
		t.Fatalf("disabled Record should be a no-op, got %v", err)
	}
	if s.IsSatisfied("unpack") {
		t.Error("disabled store is never satisfied")
	}
	if _, ok := s.Data("unpack"); ok {
		t.Error("disabled store has no data")
	}
	if _, err := os.Stat(s.Dir()); !os.IsNotExist(err) {
		t.Error("disabled store should not create its directory")
	}
}
