package devapi

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/util"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
)

const dayFormat = "2006-01-02"

// Store answers the backend API from the devapi database.
type Store struct {
	db    *sql.DB
	clock quartz.Clock
}

func NewStore(db *sql.DB, clock quartz.Clock) *Store {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Store{db: db, clock: clock}
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func parseTS(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// since returns the start of the trailing window of days ending now.
func (s *Store) since(days int) time.Time {
	return s.clock.Now().UTC().AddDate(0, 0, -days)
}

func rangeDays(rng string) (int, error) {
	n := util.RangeDays(rng)
	if n == 0 {
		return 0, fmt.Errorf("%w: range %q", ErrInvalid, rng)
	}
	return n, nil
}

func (s *Store) checkApp(ctx context.Context, appID string) error {
	if appID == "" {
		return fmt.Errorf("%w: app is required", ErrInvalid)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM apps WHERE id = ?`, appID).Scan(&n); err != nil {
		return fmt.Errorf("looking up app: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("app %s: %w", appID, ErrNotFound)
	}
	return nil
}

func (s *Store) ListApps(ctx context.Context) ([]apiclient.App, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM apps ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing apps: %w", err)
	}
	defer rows.Close()

	apps := []apiclient.App{}
	for rows.Next() {
		var a apiclient.App
		var created string
		if err := rows.Scan(&a.ID, &a.Name, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTS(created)
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (s *Store) RealtimeStats(ctx context.Context, appID, timeRange string) (apiclient.RealtimeStats, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return apiclient.RealtimeStats{}, err
	}
	window, err := util.RangeDuration(timeRange)
	if err != nil || window <= 0 {
		return apiclient.RealtimeStats{}, fmt.Errorf("%w: timeRange %q", ErrInvalid, timeRange)
	}

	now := s.clock.Now().UTC()
	out := apiclient.RealtimeStats{TimeRange: timeRange, UpdatedAt: now}
	var events int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id), COUNT(DISTINCT session_id), COUNT(*)
		FROM events WHERE app_id = ? AND created_at >= ?
	`, appID, ts(now.Add(-window))).Scan(&out.ActiveUsers, &out.ActiveSessions, &events)
	if err != nil {
		return apiclient.RealtimeStats{}, fmt.Errorf("realtime stats: %w", err)
	}
	out.EventsPerMinute = float64(events) / window.Minutes()
	return out, nil
}

func (s *Store) Overview(ctx context.Context, appID, rng string) (apiclient.Overview, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return apiclient.Overview{}, err
	}
	days, err := rangeDays(rng)
	if err != nil {
		return apiclient.Overview{}, err
	}
	from, prev := ts(s.since(days)), ts(s.since(2*days))

	var (
		out           apiclient.Overview
		avg           any
		bounced       int64
		previousUsers int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT user_id) FROM events WHERE app_id = ?1 AND created_at >= ?2),
			(SELECT COUNT(*) FROM users WHERE app_id = ?1 AND first_seen >= ?2),
			(SELECT COUNT(*) FROM sessions WHERE app_id = ?1 AND started_at >= ?2),
			(SELECT COUNT(*) FROM events WHERE app_id = ?1 AND created_at >= ?2),
			(SELECT AVG(duration_seconds) FROM sessions WHERE app_id = ?1 AND started_at >= ?2),
			(SELECT COUNT(*) FROM sessions s WHERE s.app_id = ?1 AND s.started_at >= ?2
				AND (SELECT COUNT(*) FROM events e WHERE e.session_id = s.id) <= 1),
			(SELECT COUNT(DISTINCT user_id) FROM events WHERE app_id = ?1 AND created_at >= ?3 AND created_at < ?2)
	`, appID, from, prev).Scan(
		&out.TotalUsers, &out.NewUsers, &out.TotalSessions, &out.TotalEvents,
		&avg, &bounced, &previousUsers,
	)
	if err != nil {
		return apiclient.Overview{}, fmt.Errorf("overview: %w", err)
	}

	out.AvgSessionSeconds = scanFloat(avg)
	if out.TotalSessions > 0 {
		out.BounceRate = float64(bounced) / float64(out.TotalSessions)
	}
	if previousUsers > 0 {
		out.UsersChangePercent = float64(out.TotalUsers-previousUsers) / float64(previousUsers) * 100
	}
	return out, nil
}

// TimeSeries returns one point per day of the range, oldest first and
// ending today. Days without activity are zero.
func (s *Store) TimeSeries(ctx context.Context, appID, rng, metric string) (apiclient.TimeSeries, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return apiclient.TimeSeries{}, err
	}
	days, err := rangeDays(rng)
	if err != nil {
		return apiclient.TimeSeries{}, err
	}
	now := s.clock.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1-days)

	var query string
	switch metric {
	case "dau":
		query = `SELECT substr(created_at, 1, 10) AS day, COUNT(DISTINCT user_id)
			FROM events WHERE app_id = ? AND created_at >= ? GROUP BY day`
	case "new", "total":
		query = `SELECT substr(first_seen, 1, 10) AS day, COUNT(*)
			FROM users WHERE app_id = ? AND first_seen >= ? GROUP BY day`
	default:
		return apiclient.TimeSeries{}, fmt.Errorf("%w: metric %q", ErrInvalid, metric)
	}

	byDay, err := s.countByKey(ctx, query, appID, ts(from))
	if err != nil {
		return apiclient.TimeSeries{}, fmt.Errorf("time series: %w", err)
	}

	var running int64
	if metric == "total" {
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE app_id = ? AND first_seen < ?`, appID, ts(from)).Scan(&running)
		if err != nil {
			return apiclient.TimeSeries{}, fmt.Errorf("time series baseline: %w", err)
		}
	}

	out := apiclient.TimeSeries{Metric: metric, Range: rng, Points: make([]apiclient.Point, 0, days)}
	total := int64(0)
	for d := 0; d < days; d++ {
		day := from.AddDate(0, 0, d).Format(dayFormat)
		v := byDay[day]
		total += v
		if metric == "total" {
			running += v
			v = running
		}
		out.Points = append(out.Points, apiclient.Point{Date: day, Value: v})
	}
	// A range with no activity at all is empty rather than a flat line.
	if total == 0 && running == 0 {
		out.Points = nil
	}
	return out, nil
}

func (s *Store) countByKey(ctx context.Context, query string, args ...any) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var k sql.NullString
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k.String] = n
	}
	return out, rows.Err()
}

func (s *Store) buckets(ctx context.Context, query string, args ...any) ([]apiclient.Bucket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []apiclient.Bucket{}
	for rows.Next() {
		var k sql.NullString
		var b apiclient.Bucket
		if err := rows.Scan(&k, &b.Count); err != nil {
			return nil, err
		}
		b.Key = k.String
		if b.Key == "" {
			b.Key = "unknown"
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GeoDistribution(ctx context.Context, appID, rng string) ([]apiclient.Bucket, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return nil, err
	}
	days, err := rangeDays(rng)
	if err != nil {
		return nil, err
	}
	return s.buckets(ctx, `
		SELECT country, COUNT(*) AS n FROM users
		WHERE app_id = ? AND last_seen >= ?
		GROUP BY country ORDER BY n DESC, country
	`, appID, ts(s.since(days)))
}

func (s *Store) PlatformDistribution(ctx context.Context, appID, rng string) ([]apiclient.Bucket, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return nil, err
	}
	days, err := rangeDays(rng)
	if err != nil {
		return nil, err
	}
	return s.buckets(ctx, `
		SELECT platform, COUNT(*) AS n FROM sessions
		WHERE app_id = ? AND started_at >= ?
		GROUP BY platform ORDER BY n DESC, platform
	`, appID, ts(s.since(days)))
}

func (s *Store) TopEvents(ctx context.Context, appID, rng string, limit int) ([]apiclient.Bucket, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return nil, err
	}
	days, err := rangeDays(rng)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.buckets(ctx, `
		SELECT name, COUNT(*) AS n FROM events
		WHERE app_id = ? AND created_at >= ?
		GROUP BY name ORDER BY n DESC, name LIMIT ?
	`, appID, ts(s.since(days)), limit)
}

func normalizePage(p apiclient.PageParams) apiclient.PageParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}
	return p
}

func offset(p apiclient.PageParams) int { return (p.Page - 1) * p.PageSize }

const userColumns = `u.id, u.country, u.platform, u.first_seen, u.last_seen,
	(SELECT COUNT(*) FROM sessions s WHERE s.app_id = u.app_id AND s.user_id = u.id),
	(SELECT COUNT(*) FROM events e WHERE e.app_id = u.app_id AND e.user_id = u.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (apiclient.User, error) {
	var (
		u                 apiclient.User
		country, platform sql.NullString
		first, last       string
	)
	if err := row.Scan(&u.ID, &country, &platform, &first, &last, &u.Sessions, &u.Events); err != nil {
		return apiclient.User{}, err
	}
	u.Country, u.Platform = country.String, platform.String
	u.FirstSeen, u.LastSeen = parseTS(first), parseTS(last)
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, appID string, p apiclient.PageParams) (apiclient.Page[apiclient.User], error) {
	p = normalizePage(p)
	out := apiclient.Page[apiclient.User]{Items: []apiclient.User{}, Page: p.Page, PageSize: p.PageSize}
	if err := s.checkApp(ctx, appID); err != nil {
		return out, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE app_id = ?`, appID).Scan(&out.Total); err != nil {
		return out, fmt.Errorf("counting users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users u
		WHERE u.app_id = ? ORDER BY u.last_seen DESC, u.id LIMIT ? OFFSET ?`, appID, p.PageSize, offset(p))
	if err != nil {
		return out, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return out, err
		}
		out.Items = append(out.Items, u)
	}
	return out, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, appID, userID string) (apiclient.User, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return apiclient.User{}, err
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.app_id = ? AND u.id = ?`, appID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return apiclient.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return apiclient.User{}, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

func (s *Store) ListSessions(ctx context.Context, appID string, f apiclient.SessionFilter) (apiclient.Page[apiclient.Session], error) {
	p := normalizePage(f.PageParams)
	out := apiclient.Page[apiclient.Session]{Items: []apiclient.Session{}, Page: p.Page, PageSize: p.PageSize}
	if err := s.checkApp(ctx, appID); err != nil {
		return out, err
	}

	where := `WHERE s.app_id = ?1 AND (?2 = '' OR s.platform = ?2)`
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions s `+where, appID, f.Platform).Scan(&out.Total); err != nil {
		return out, fmt.Errorf("counting sessions: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.platform, s.started_at, s.duration_seconds,
			(SELECT COUNT(*) FROM events e WHERE e.session_id = s.id)
		FROM sessions s `+where+`
		ORDER BY s.started_at DESC, s.id LIMIT ?3 OFFSET ?4
	`, appID, f.Platform, p.PageSize, offset(p))
	if err != nil {
		return out, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sess apiclient.Session
		var started string
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Platform, &started, &sess.DurationSeconds, &sess.EventCount); err != nil {
			return out, err
		}
		sess.StartedAt = parseTS(started)
		out.Items = append(out.Items, sess)
	}
	return out, rows.Err()
}

func (s *Store) ListEvents(ctx context.Context, appID string, f apiclient.EventFilter) (apiclient.Page[apiclient.Event], error) {
	p := normalizePage(f.PageParams)
	out := apiclient.Page[apiclient.Event]{Items: []apiclient.Event{}, Page: p.Page, PageSize: p.PageSize}
	if err := s.checkApp(ctx, appID); err != nil {
		return out, err
	}

	where := `WHERE app_id = ?1 AND (?2 = '' OR name = ?2)`
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events `+where, appID, f.Name).Scan(&out.Total); err != nil {
		return out, fmt.Errorf("counting events: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, user_id, session_id, properties, created_at FROM events `+where+`
		ORDER BY created_at DESC, id LIMIT ?3 OFFSET ?4
	`, appID, f.Name, p.PageSize, offset(p))
	if err != nil {
		return out, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e       apiclient.Event
			props   sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.UserID, &e.SessionID, &props, &created); err != nil {
			return out, err
		}
		if props.Valid && props.String != "" {
			if err := json.Unmarshal([]byte(props.String), &e.Properties); err != nil {
				return out, fmt.Errorf("event %s properties: %w", e.ID, err)
			}
		}
		e.Timestamp = parseTS(created)
		out.Items = append(out.Items, e)
	}
	return out, rows.Err()
}

func (s *Store) GetSettings(ctx context.Context, appID string) (apiclient.Settings, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return apiclient.Settings{}, err
	}
	var (
		out   apiclient.Settings
		track int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT a.name, COALESCE(st.timezone, 'UTC'), COALESCE(st.retention_days, 90),
			COALESCE(st.session_timeout_minutes, 30), COALESCE(st.track_anonymous, 1)
		FROM apps a LEFT JOIN app_settings st ON st.app_id = a.id
		WHERE a.id = ?
	`, appID).Scan(&out.AppName, &out.Timezone, &out.RetentionDays, &out.SessionTimeout, &track)
	if err != nil {
		return apiclient.Settings{}, fmt.Errorf("getting settings: %w", err)
	}
	out.TrackAnonymous = track == 1
	return out, nil
}

func validateSettings(in apiclient.Settings) error {
	switch {
	case strings.TrimSpace(in.AppName) == "":
		return fmt.Errorf("%w: appName is required", ErrInvalid)
	case in.RetentionDays < 1:
		return fmt.Errorf("%w: retentionDays must be positive", ErrInvalid)
	case in.SessionTimeout < 1:
		return fmt.Errorf("%w: sessionTimeoutMinutes must be positive", ErrInvalid)
	}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalid, in.Timezone)
		}
	}
	return nil
}

func (s *Store) UpdateSettings(ctx context.Context, appID string, in apiclient.Settings) (apiclient.Settings, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return apiclient.Settings{}, err
	}
	if err := validateSettings(in); err != nil {
		return apiclient.Settings{}, err
	}
	if in.Timezone == "" {
		in.Timezone = "UTC"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apiclient.Settings{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE apps SET name = ? WHERE id = ?`, strings.TrimSpace(in.AppName), appID); err != nil {
		return apiclient.Settings{}, fmt.Errorf("renaming app: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO app_settings (app_id, timezone, retention_days, session_timeout_minutes, track_anonymous)
		VALUES (?1, ?2, ?3, ?4, ?5)
		ON CONFLICT(app_id) DO UPDATE SET
			timezone = excluded.timezone,
			retention_days = excluded.retention_days,
			session_timeout_minutes = excluded.session_timeout_minutes,
			track_anonymous = excluded.track_anonymous
	`, appID, in.Timezone, in.RetentionDays, in.SessionTimeout, sqlBool(in.TrackAnonymous))
	if err != nil {
		return apiclient.Settings{}, fmt.Errorf("saving settings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return apiclient.Settings{}, fmt.Errorf("committing settings: %w", err)
	}
	return s.GetSettings(ctx, appID)
}

func (s *Store) ListAPIKeys(ctx context.Context, appID string) ([]apiclient.APIKey, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, prefix, created_at, last_used_at FROM api_keys
		WHERE app_id = ? ORDER BY created_at, id
	`, appID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	keys := []apiclient.APIKey{}
	for rows.Next() {
		var (
			k        apiclient.APIKey
			created  string
			lastUsed sql.NullString
		)
		if err := rows.Scan(&k.ID, &k.Name, &k.Prefix, &created, &lastUsed); err != nil {
			return nil, err
		}
		k.CreatedAt = parseTS(created)
		k.LastUsed = scanOptionalTS(lastUsed)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// newSecret returns a random key and its display prefix.
func newSecret() (string, string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	secret := "pm_" + hex.EncodeToString(b)
	return secret, secret[:10], nil
}

func hashKey(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// CreateAPIKey stores a new key. Only its hash is kept, so the returned key
// is the one time the secret is available.
func (s *Store) CreateAPIKey(ctx context.Context, appID string, in apiclient.CreateAPIKeyRequest) (apiclient.APIKey, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return apiclient.APIKey{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apiclient.APIKey{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	secret, prefix, err := newSecret()
	if err != nil {
		return apiclient.APIKey{}, fmt.Errorf("generating key: %w", err)
	}

	key := apiclient.APIKey{
		ID:        uuid.NewString(),
		Name:      name,
		Prefix:    prefix,
		Key:       secret,
		CreatedAt: s.clock.Now().UTC().Truncate(time.Second),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, app_id, name, prefix, key_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`, key.ID, appID, key.Name, key.Prefix, hashKey(secret), ts(key.CreatedAt))
	if err != nil {
		return apiclient.APIKey{}, fmt.Errorf("creating api key: %w", err)
	}
	return key, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, appID, keyID string) error {
	if err := s.checkApp(ctx, appID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE app_id = ? AND id = ?`, appID, keyID)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key %s: %w", keyID, ErrNotFound)
	}
	return nil
}

// Authenticate reports whether secret is a known key and records its use.
func (s *Store) Authenticate(ctx context.Context, secret string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE key_hash = ?`,
		ts(s.clock.Now()), hashKey(secret))
	if err != nil {
		return false, fmt.Errorf("authenticating: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Now is the store's current time.
func (s *Store) Now() time.Time { return s.clock.Now() }
