package devapi

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/logging"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	url := "file:" + filepath.Join(t.TempDir(), "devapi.db")
	db, err := Open(context.Background(), url, logging.Discard())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fixture inserts a small, fully known data set for app "a1" relative to now.
type fixture struct {
	t   *testing.T
	db  *sql.DB
	now time.Time
}

func newFixture(t *testing.T) (*Store, *fixture) {
	t.Helper()
	return newFixtureOn(t, testDB(t))
}

func newFixtureOn(t *testing.T, db *sql.DB) (*Store, *fixture) {
	t.Helper()
	clock := quartz.NewMock(t)
	f := &fixture{t: t, db: db, now: clock.Now().UTC()}
	f.exec(`INSERT INTO apps (id, name, created_at) VALUES ('a1', 'Shop', ?)`, ts(f.now.AddDate(-1, 0, 0)))
	f.exec(`INSERT INTO apps (id, name, created_at) VALUES ('a2', 'Blog', ?)`, ts(f.now.AddDate(-1, 0, 0)))
	return NewStore(db, clock), f
}

func (f *fixture) exec(query string, args ...any) {
	f.t.Helper()
	if _, err := f.db.Exec(query, args...); err != nil {
		f.t.Fatalf("exec %q: %v", query, err)
	}
}

func (f *fixture) user(id, country, platform string, firstSeen, lastSeen time.Duration) {
	f.exec(`INSERT INTO users (app_id, id, country, platform, first_seen, last_seen) VALUES ('a1', ?, ?, ?, ?, ?)`,
		id, country, platform, ts(f.now.Add(-firstSeen)), ts(f.now.Add(-lastSeen)))
}

func (f *fixture) session(id, user, platform string, ago time.Duration, seconds int) {
	f.exec(`INSERT INTO sessions (id, app_id, user_id, platform, started_at, duration_seconds) VALUES (?, 'a1', ?, ?, ?, ?)`,
		id, user, platform, ts(f.now.Add(-ago)), seconds)
}

func (f *fixture) event(id, session, user, name string, ago time.Duration) {
	f.exec(`INSERT INTO events (id, app_id, session_id, user_id, name, properties, created_at) VALUES (?, 'a1', ?, ?, ?, '{"screen":"home"}', ?)`,
		id, session, user, name, ts(f.now.Add(-ago)))
}

const day = 24 * time.Hour

// standard data: u1 is active now with two sessions, u2 was active 3 days ago
// with a one-event session, u3 is from before the 7 day window.
func (f *fixture) standard() {
	f.user("u1", "DE", "ios", 2*day, time.Minute)
	f.user("u2", "TR", "android", 3*day, 3*day)
	f.user("u3", "DE", "web", 20*day, 10*day)

	f.session("s1", "u1", "ios", 10*time.Minute, 120)
	f.event("e1", "s1", "u1", "app_open", 10*time.Minute)
	f.event("e2", "s1", "u1", "purchase", 5*time.Minute)
	f.session("s2", "u1", "ios", 2*day, 60)
	f.event("e3", "s2", "u1", "app_open", 2*day)
	f.event("e4", "s2", "u1", "search", 2*day-time.Minute)

	f.session("s3", "u2", "android", 3*day, 0)
	f.event("e5", "s3", "u2", "app_open", 3*day)

	f.session("s4", "u3", "web", 10*day, 300)
	f.event("e6", "s4", "u3", "app_open", 10*day)
}

func TestMigrate_UpDownUp(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	v, dirty, err := CurrentVersion(ctx, db)
	if err != nil || dirty || v != 1 {
		t.Fatalf("CurrentVersion() = %d, %v, %v; want 1, false, nil", v, dirty, err)
	}
	if err := Migrate(ctx, db, logging.Discard()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if err := Rollback(ctx, db, 0); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if _, err := db.Exec(`SELECT 1 FROM apps`); err == nil {
		t.Error("apps table should be gone after rollback")
	}
	if err := Migrate(ctx, db, logging.Discard()); err != nil {
		t.Fatalf("Migrate() after rollback error = %v", err)
	}
}

func TestStore_UnknownAndMissingApp(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	if _, err := s.Overview(ctx, "", "7d"); !errors.Is(err, ErrInvalid) {
		t.Errorf("missing app: got %v, want ErrInvalid", err)
	}
	if _, err := s.Overview(ctx, "nope", "7d"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown app: got %v, want ErrNotFound", err)
	}
	if _, err := s.Overview(ctx, "a1", "7x"); !errors.Is(err, ErrInvalid) {
		t.Errorf("bad range: got %v, want ErrInvalid", err)
	}
}

func TestStore_Realtime(t *testing.T) {
	s, f := newFixture(t)
	f.standard()

	got, err := s.RealtimeStats(context.Background(), "a1", "30m")
	if err != nil {
		t.Fatalf("RealtimeStats() error = %v", err)
	}
	if got.ActiveUsers != 1 || got.ActiveSessions != 1 {
		t.Errorf("active = %d users / %d sessions, want 1 / 1", got.ActiveUsers, got.ActiveSessions)
	}
	if want := 2.0 / 30; got.EventsPerMinute != want {
		t.Errorf("EventsPerMinute = %v, want %v", got.EventsPerMinute, want)
	}
}

func TestStore_Overview(t *testing.T) {
	s, f := newFixture(t)
	f.standard()

	got, err := s.Overview(context.Background(), "a1", "7d")
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	want := apiclient.Overview{
		TotalUsers:        2,
		NewUsers:          2,
		TotalSessions:     3,
		TotalEvents:       5,
		AvgSessionSeconds: 60,
		// s3 has a single event.
		BounceRate: 1.0 / 3,
		// u3 was the only user in the previous 7 days.
		UsersChangePercent: 100,
	}
	if got != want {
		t.Errorf("Overview() = %+v, want %+v", got, want)
	}
}

func TestStore_TimeSeries(t *testing.T) {
	s, f := newFixture(t)
	f.standard()
	ctx := context.Background()

	total, err := s.TimeSeries(ctx, "a1", "30d", "total")
	if err != nil {
		t.Fatalf("TimeSeries(total) error = %v", err)
	}
	if len(total.Points) != 30 {
		t.Fatalf("got %d points, want 30", len(total.Points))
	}
	if last := total.Points[len(total.Points)-1]; last.Value != 3 || last.Date != f.now.Format(dayFormat) {
		t.Errorf("last point = %+v, want 3 users today", last)
	}
	for i := 1; i < len(total.Points); i++ {
		if total.Points[i].Value < total.Points[i-1].Value {
			t.Fatalf("cumulative series decreased at %d: %+v", i, total.Points)
		}
	}

	if _, err := s.TimeSeries(ctx, "a1", "7d", "bogus"); !errors.Is(err, ErrInvalid) {
		t.Errorf("bad metric: got %v, want ErrInvalid", err)
	}

	empty, err := s.TimeSeries(ctx, "a2", "7d", "dau")
	if err != nil {
		t.Fatalf("TimeSeries(a2) error = %v", err)
	}
	if !empty.IsEmpty() {
		t.Errorf("app without activity should give an empty series, got %d points", len(empty.Points))
	}
}

func TestStore_Distributions(t *testing.T) {
	s, f := newFixture(t)
	f.standard()
	ctx := context.Background()

	geo, err := s.GeoDistribution(ctx, "a1", "30d")
	if err != nil {
		t.Fatalf("GeoDistribution() error = %v", err)
	}
	if len(geo) != 2 || geo[0] != (apiclient.Bucket{Key: "DE", Count: 2}) {
		t.Errorf("GeoDistribution() = %+v", geo)
	}

	top, err := s.TopEvents(ctx, "a1", "7d", 2)
	if err != nil {
		t.Fatalf("TopEvents() error = %v", err)
	}
	want := []apiclient.Bucket{{Key: "app_open", Count: 3}, {Key: "purchase", Count: 1}}
	if len(top) != 2 || top[0] != want[0] || top[1] != want[1] {
		t.Errorf("TopEvents() = %+v, want %+v", top, want)
	}
}

func TestStore_Lists(t *testing.T) {
	s, f := newFixture(t)
	f.standard()
	ctx := context.Background()

	users, err := s.ListUsers(ctx, "a1", apiclient.PageParams{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if users.Total != 3 || len(users.Items) != 2 || users.Items[0].ID != "u1" {
		t.Fatalf("ListUsers() = %+v", users)
	}
	if u := users.Items[0]; u.Sessions != 2 || u.Events != 4 {
		t.Errorf("u1 counts = %d sessions / %d events", u.Sessions, u.Events)
	}

	sessions, err := s.ListSessions(ctx, "a1", apiclient.SessionFilter{PageParams: apiclient.PageParams{Page: 1, PageSize: 10}, Platform: "ios"})
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if sessions.Total != 2 || sessions.Items[0].ID != "s1" || sessions.Items[0].EventCount != 2 {
		t.Errorf("ListSessions(ios) = %+v", sessions)
	}

	events, err := s.ListEvents(ctx, "a1", apiclient.EventFilter{PageParams: apiclient.PageParams{Page: 2, PageSize: 2}, Name: "app_open"})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if events.Total != 4 || len(events.Items) != 2 || events.Items[1].ID != "e6" {
		t.Errorf("ListEvents(app_open, page 2) = %+v", events)
	}
	if events.Items[0].Properties["screen"] != "home" {
		t.Errorf("properties = %v", events.Items[0].Properties)
	}

	if _, err := s.GetUser(ctx, "a1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser(missing) = %v, want ErrNotFound", err)
	}
}

func TestStore_Settings(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	got, err := s.GetSettings(ctx, "a1")
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if got != (apiclient.Settings{AppName: "Shop", Timezone: "UTC", RetentionDays: 90, SessionTimeout: 30, TrackAnonymous: true}) {
		t.Errorf("defaults = %+v", got)
	}

	in := apiclient.Settings{AppName: "Shop EU", Timezone: "Europe/Berlin", RetentionDays: 30, SessionTimeout: 15}
	out, err := s.UpdateSettings(ctx, "a1", in)
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if out != in {
		t.Errorf("UpdateSettings() = %+v, want %+v", out, in)
	}
	apps, _ := s.ListApps(ctx)
	if apps[1].Name != "Shop EU" {
		t.Errorf("app not renamed: %+v", apps)
	}

	for _, bad := range []apiclient.Settings{
		{AppName: "", RetentionDays: 1, SessionTimeout: 1},
		{AppName: "x", RetentionDays: 0, SessionTimeout: 1},
		{AppName: "x", RetentionDays: 1, SessionTimeout: 1, Timezone: "Mars/Olympus"},
	} {
		if _, err := s.UpdateSettings(ctx, "a1", bad); !errors.Is(err, ErrInvalid) {
			t.Errorf("UpdateSettings(%+v) = %v, want ErrInvalid", bad, err)
		}
	}
}

func TestStore_APIKeys(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	key, err := s.CreateAPIKey(ctx, "a1", apiclient.CreateAPIKeyRequest{Name: " ci "})
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}
	if key.Name != "ci" || key.Key == "" || key.Prefix != key.Key[:10] {
		t.Errorf("CreateAPIKey() = %+v", key)
	}

	keys, err := s.ListAPIKeys(ctx, "a1")
	if err != nil {
		t.Fatalf("ListAPIKeys() error = %v", err)
	}
	if len(keys) != 1 || keys[0].Key != "" || keys[0].LastUsed != nil {
		t.Fatalf("ListAPIKeys() = %+v, want one key without secret", keys)
	}

	ok, err := s.Authenticate(ctx, key.Key)
	if err != nil || !ok {
		t.Fatalf("Authenticate() = %v, %v", ok, err)
	}
	keys, _ = s.ListAPIKeys(ctx, "a1")
	if keys[0].LastUsed == nil {
		t.Error("LastUsed not recorded")
	}
	if ok, _ := s.Authenticate(ctx, "pm_wrong"); ok {
		t.Error("unknown secret authenticated")
	}

	if err := s.DeleteAPIKey(ctx, "a2", key.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting another app's key = %v, want ErrNotFound", err)
	}
	if err := s.DeleteAPIKey(ctx, "a1", key.ID); err != nil {
		t.Fatalf("DeleteAPIKey() error = %v", err)
	}
	if keys, _ := s.ListAPIKeys(ctx, "a1"); len(keys) != 0 {
		t.Errorf("key still listed after delete: %+v", keys)
	}
}

func TestSeed(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opts := SeedOptions{UsersPerApp: 5, MaxSessions: 2, MaxEvents: 3, Days: 10, RandSeed: 7}

	seeded, err := Seed(ctx, db, now, opts)
	if err != nil || !seeded {
		t.Fatalf("Seed() = %v, %v", seeded, err)
	}
	seeded, err = Seed(ctx, db, now, opts)
	if err != nil || seeded {
		t.Errorf("second Seed() = %v, %v; want no-op", seeded, err)
	}

	var users, sessions, orphans int
	_ = db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&users)
	_ = db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&sessions)
	_ = db.QueryRow(`SELECT COUNT(*) FROM events e WHERE NOT EXISTS (SELECT 1 FROM sessions s WHERE s.id = e.session_id)`).Scan(&orphans)
	if users != 10 || sessions < 10 || orphans != 0 {
		t.Errorf("seeded %d users, %d sessions, %d orphan events", users, sessions, orphans)
	}
}
