package tracking

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "tracking.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndReadOpens(t *testing.T) {
	s := newTestStore(t)

	first := time.Now().Add(-time.Hour).Round(time.Millisecond)
	events := []*OpenEvent{
		{TrackingID: "tok-1", UserAgent: "ua-1", OpenedAt: first},
		{TrackingID: "tok-1", UserAgent: "ua-2", OpenedAt: first.Add(time.Minute)},
		{TrackingID: "tok-2", UserAgent: "ua-3", OpenedAt: first},
	}
	for _, ev := range events {
		if err := s.RecordOpen(ev); err != nil {
			t.Fatalf("RecordOpen() error = %v", err)
		}
	}

	opens, err := s.Opens("tok-1")
	if err != nil {
		t.Fatalf("Opens() error = %v", err)
	}
	if len(opens) != 2 {
		t.Fatalf("got %d opens, want 2", len(opens))
	}
	if opens[0].UserAgent != "ua-1" || opens[1].UserAgent != "ua-2" {
		t.Errorf("order = %s, %s; want oldest first", opens[0].UserAgent, opens[1].UserAgent)
	}
	if !opens[0].OpenedAt.Equal(first) {
		t.Errorf("OpenedAt = %v, want %v", opens[0].OpenedAt, first)
	}
}

func TestOpensUnknownToken(t *testing.T) {
	s := newTestStore(t)

	opens, err := s.Opens("missing")
	if err != nil {
		t.Fatalf("Opens() error = %v", err)
	}
	if len(opens) != 0 {
		t.Errorf("got %d opens for unknown token, want 0", len(opens))
	}
}

func TestRecordOpenDefaultsTimestamp(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordOpen(&OpenEvent{TrackingID: "tok"}); err != nil {
		t.Fatalf("RecordOpen() error = %v", err)
	}
	opens, _ := s.Opens("tok")
	if len(opens) != 1 || opens[0].OpenedAt.IsZero() {
		t.Errorf("opens = %v, want one event with a timestamp", opens)
	}
}
