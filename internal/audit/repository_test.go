package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/tuya-relay/internal/infrastructure/database"
	"github.com/nerrad567/tuya-relay/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func boolPtr(b bool) *bool { return &b }

func TestCreate_FillsDefaults(t *testing.T) {
	repo := newTestRepo(t)

	e := &Entry{
		SessionID:  "s-1",
		Result:     ResultSent,
		DeviceType: "MainFan",
		State:      "turn_on",
		Code:       "switch_1",
		Value:      boolPtr(true),
		DurationMS: 12.5,
	}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Errorf("defaults not filled: %+v", e)
	}

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List() = %+v, want one entry", res)
	}

	got := res.Entries[0]
	if got.ID != e.ID || got.Code != "switch_1" || got.DurationMS != 12.5 {
		t.Errorf("entry = %+v", got)
	}
	if got.Value == nil || !*got.Value {
		t.Errorf("Value = %v, want true", got.Value)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, e.CreatedAt)
	}
}

func TestCreate_Rejection(t *testing.T) {
	repo := newTestRepo(t)

	e := &Entry{
		SessionID: "s-2",
		Result:    "malformed_payload",
		Error:     "command: malformed payload",
	}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := repo.List(context.Background(), Filter{Result: "malformed_payload"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.Entries))
	}
	got := res.Entries[0]
	if got.Value != nil || got.Code != "" || got.DurationMS != 0 {
		t.Errorf("rejection carries dispatch fields: %+v", got)
	}
	if got.Error == "" {
		t.Error("Error not stored")
	}
}

func TestList_FilterAndPaging(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := []Entry{
		{SessionID: "a", Result: ResultSent, DeviceType: "MainFan", Value: boolPtr(true)},
		{SessionID: "a", Result: ResultFailed, DeviceType: "MainLight", Value: boolPtr(false), Error: "boom"},
		{SessionID: "b", Result: ResultSent, DeviceType: "MainFan", Value: boolPtr(false)},
		{SessionID: "b", Result: "unrecognized_command", DeviceType: "Heater"},
	}
	for i := range seed {
		seed[i].CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantLen   int
		wantFirst string
	}{
		{"all newest first", Filter{}, 4, 4, seed[3].ID},
		{"by session", Filter{SessionID: "a"}, 2, 2, seed[1].ID},
		{"by device", Filter{DeviceType: "MainFan"}, 2, 2, seed[2].ID},
		{"by result", Filter{Result: ResultFailed}, 1, 1, seed[1].ID},
		{"combined", Filter{SessionID: "b", Result: ResultSent}, 1, 1, seed[2].ID},
		{"paged", Filter{Limit: 2, Offset: 1}, 4, 2, seed[2].ID},
		{"no match", Filter{DeviceType: "Toaster"}, 0, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal || len(res.Entries) != tt.wantLen {
				t.Fatalf("total/len = %d/%d, want %d/%d", res.Total, len(res.Entries), tt.wantTotal, tt.wantLen)
			}
			if tt.wantLen > 0 && res.Entries[0].ID != tt.wantFirst {
				t.Errorf("first = %s, want %s", res.Entries[0].ID, tt.wantFirst)
			}
			if res.Entries == nil {
				t.Error("Entries is nil, want empty slice")
			}
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := newTestRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("limit/offset = %d/%d, want %d/0", res.Limit, res.Offset, maxLimit)
	}

	res, err = repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != defaultLimit {
		t.Errorf("default limit = %d, want %d", res.Limit, defaultLimit)
	}
}
