package state

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-acbridge/migrations"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestStore returns a store over a migrated in-memory database with a
// controllable clock.
func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	clock := testNow
	s := NewStore(db.DB)
	s.now = func() time.Time { return clock }
	return s, &clock
}

func coolState() climate.State {
	return climate.State{Power: true, Mode: climate.ModeCool, FanSpeed: climate.FanLow, Temperature: 24, LastUpdated: testNow}
}

func TestStore_GetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Get(context.Background(), "living_room")
	if !errors.Is(err, ErrStateNotFound) {
		t.Errorf("Get() error = %v, want ErrStateNotFound", err)
	}
}

func TestStore_PutGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	want := coolState()
	if err := s.Put(ctx, "living_room", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "living_room")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}

	// Upsert replaces the row
	want.Power = false
	if err := s.Put(ctx, "living_room", want); err != nil {
		t.Fatalf("Put() second error = %v", err)
	}
	got, _ = s.Get(ctx, "living_room")
	if got.Power {
		t.Error("Get() after update Power = true, want false")
	}
	if got.Mode != climate.ModeCool {
		t.Errorf("Get() Mode = %q, want mode kept while off", got.Mode)
	}
}

func TestStore_PutSetsZeroTimestamp(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	st := coolState()
	st.LastUpdated = time.Time{}
	if err := s.Put(ctx, "x", st); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, _ := s.Get(ctx, "x")
	if !got.LastUpdated.Equal(testNow) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, testNow)
	}
}

func TestStore_PutRequiresID(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Put(context.Background(), "", coolState()); err == nil {
		t.Error("Put() expected error for empty device id")
	}
}

func TestStore_Seed(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	inserted, err := s.Seed(ctx, "bedroom", climate.DefaultState(testNow))
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if !inserted {
		t.Error("Seed() inserted = false for a new device")
	}

	if err := s.Put(ctx, "bedroom", coolState()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	inserted, err = s.Seed(ctx, "bedroom", climate.DefaultState(testNow))
	if err != nil {
		t.Fatalf("Seed() second error = %v", err)
	}
	if inserted {
		t.Error("Seed() inserted = true for an existing device")
	}

	got, _ := s.Get(ctx, "bedroom")
	if !got.Power {
		t.Error("Seed() overwrote existing state")
	}

	history, _ := s.GetHistory(ctx, "bedroom", 0)
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[1].Source != SourceSeed || history[0].Source != SourceCommand {
		t.Errorf("sources = [%s %s], want [command seed]", history[0].Source, history[1].Source)
	}
}

func TestStore_List(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Seed(ctx, "a", climate.DefaultState(testNow)); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if err := s.Put(ctx, "b", coolState()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	states, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(states))
	}
	if states["a"].Power || states["a"].Temperature != climate.DefaultTemperature {
		t.Errorf("List()[a] = %+v, want default state", states["a"])
	}
	if states["b"] != coolState() {
		t.Errorf("List()[b] = %+v, want %+v", states["b"], coolState())
	}
}

func TestStore_PutSourceFromContext(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "living_room", coolState()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	*clock = clock.Add(time.Second)
	if err := s.Put(WithSource(ctx, SourceAPI), "living_room", coolState()); err != nil {
		t.Fatalf("Put() tagged error = %v", err)
	}

	entries, err := s.GetHistory(ctx, "living_room", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Source != SourceAPI || entries[1].Source != SourceCommand {
		t.Errorf("sources = %q, %q; want %q, %q", entries[0].Source, entries[1].Source, SourceAPI, SourceCommand)
	}
}

func TestSourceFrom(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"untagged", context.Background(), SourceCommand},
		{"api", WithSource(context.Background(), SourceAPI), SourceAPI},
		{"empty falls back", WithSource(context.Background(), ""), SourceCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SourceFrom(tt.ctx); got != tt.want {
				t.Errorf("SourceFrom() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStore_GetHistory(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	for temp := 16; temp < 20; temp++ {
		*clock = clock.Add(time.Second)
		st := coolState()
		st.Temperature = temp
		if err := s.Put(ctx, "living_room", st); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	if err := s.PutWithSource(ctx, "other", coolState(), SourceAPI); err != nil {
		t.Fatalf("PutWithSource() error = %v", err)
	}

	entries, err := s.GetHistory(ctx, "living_room", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("len(entries) = %d, want 4", len(entries))
	}
	if entries[0].State.Temperature != 19 || entries[3].State.Temperature != 16 {
		t.Errorf("entries not newest first: first=%d last=%d", entries[0].State.Temperature, entries[3].State.Temperature)
	}
	if entries[0].DeviceID != "living_room" || entries[0].Source != SourceCommand {
		t.Errorf("entries[0] = %+v, want living_room command entry", entries[0])
	}

	limited, _ := s.GetHistory(ctx, "living_room", 2)
	if len(limited) != 2 {
		t.Errorf("len(GetHistory(2)) = %d, want 2", len(limited))
	}

	other, _ := s.GetHistory(ctx, "other", 1000)
	if len(other) != 1 || other[0].Source != SourceAPI {
		t.Errorf("GetHistory(other) = %+v, want one api entry", other)
	}
}

func TestStore_PruneHistory(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "x", coolState()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	*clock = clock.Add(48 * time.Hour)
	if err := s.Put(ctx, "x", coolState()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	n, err := s.PruneHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PruneHistory() deleted %d, want 1", n)
	}

	if _, err := s.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) expected error")
	}
}

func TestStore_PutRollsBackOnHistoryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	s := NewStore(db)
	s.now = func() time.Time { return testNow }

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ac_states")).
		WithArgs("x", true, "cool", "low", 24, "2026-03-01T12:00:00.000000Z").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO state_history")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = s.Put(context.Background(), "x", coolState())
	if err == nil {
		t.Fatal("Put() expected error")
	}
	if got := err.Error(); got != "inserting state history: disk full" {
		t.Errorf("Put() error = %q", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_GetQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	mock.ExpectQuery(regexp.QuoteMeta("SELECT power, mode, fan_speed, temperature, last_updated")).
		WithArgs("x").
		WillReturnError(errors.New("database is locked"))

	_, err = NewStore(db).Get(context.Background(), "x")
	if err == nil || errors.Is(err, ErrStateNotFound) {
		t.Errorf("Get() error = %v, want query error", err)
	}
}

func TestStore_GetBadTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	rows := sqlmock.NewRows([]string{"power", "mode", "fan_speed", "temperature", "last_updated"}).
		AddRow(int64(1), "cool", "low", int64(24), "yesterday")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT power")).WithArgs("x").WillReturnRows(rows)

	if _, err := NewStore(db).Get(context.Background(), "x"); err == nil {
		t.Error("Get() expected timestamp parse error")
	}
}

func TestStore_SeedExistingSkipsHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT(device_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := NewStore(db).Seed(context.Background(), "x", climate.DefaultState(testNow))
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if inserted {
		t.Error("Seed() inserted = true, want false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2026-03-01T12:00:00.000000Z", false},
		{"2026-03-01T12:00:00Z", false},
		{"", true},
		{"not a time", true},
	}
	for _, tt := range tests {
		_, err := parseTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}
