package devapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// SeedOptions sizes the demo data.
type SeedOptions struct {
	UsersPerApp int
	MaxSessions int
	MaxEvents   int
	Days        int
	RandSeed    uint64
}

func DefaultSeedOptions() SeedOptions {
	return SeedOptions{UsersPerApp: 120, MaxSessions: 6, MaxEvents: 12, Days: 90, RandSeed: 1}
}

var (
	demoApps = []struct{ id, name string }{
		{"demo-shop", "Demo Shop"},
		{"demo-news", "Demo News"},
	}
	countries  = []string{"US", "DE", "TR", "GB", "FR", "BR", "IN", "JP"}
	platforms  = []string{"ios", "android", "web"}
	eventNames = []string{"app_open", "screen_view", "add_to_cart", "purchase", "search", "share", "sign_up"}
	screens    = []string{"home", "product", "cart", "checkout", "profile", "search"}
)

func (o SeedOptions) withDefaults() SeedOptions {
	d := DefaultSeedOptions()
	if o.UsersPerApp < 1 {
		o.UsersPerApp = d.UsersPerApp
	}
	if o.MaxSessions < 1 {
		o.MaxSessions = d.MaxSessions
	}
	if o.MaxEvents < 1 {
		o.MaxEvents = d.MaxEvents
	}
	if o.Days < 1 {
		o.Days = d.Days
	}
	return o
}

// Seed fills an empty database with demo apps and their activity over the
// last opts.Days days before now. It does nothing when apps exist.
func Seed(ctx context.Context, db *sql.DB, now time.Time, opts SeedOptions) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM apps`).Scan(&n); err != nil {
		return false, fmt.Errorf("counting apps: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	opts = opts.withDefaults()
	rng := rand.New(rand.NewPCG(opts.RandSeed, opts.RandSeed^0x9e3779b97f4a7c15))
	now = now.UTC().Truncate(time.Second)
	for _, a := range demoApps {
		if err := seedApp(ctx, tx, rng, a.id, a.name, now, opts); err != nil {
			return false, fmt.Errorf("seeding %s: %w", a.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing seed: %w", err)
	}
	return true, nil
}

func seedApp(ctx context.Context, tx *sql.Tx, rng *rand.Rand, appID, name string, now time.Time, opts SeedOptions) error {
	created := now.AddDate(0, 0, -opts.Days-30)
	if _, err := tx.ExecContext(ctx, `INSERT INTO apps (id, name, created_at) VALUES (?, ?, ?)`, appID, name, ts(created)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO app_settings (app_id) VALUES (?)`, appID); err != nil {
		return err
	}

	insertUser, err := tx.PrepareContext(ctx, `INSERT INTO users (app_id, id, country, platform, first_seen, last_seen) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertUser.Close()
	insertSession, err := tx.PrepareContext(ctx, `INSERT INTO sessions (id, app_id, user_id, platform, started_at, duration_seconds) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertSession.Close()
	insertEvent, err := tx.PrepareContext(ctx, `INSERT INTO events (id, app_id, session_id, user_id, name, properties, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertEvent.Close()

	window := time.Duration(opts.Days) * 24 * time.Hour
	for u := 0; u < opts.UsersPerApp; u++ {
		userID := fmt.Sprintf("user-%04d", u+1)
		platform := platforms[rng.IntN(len(platforms))]
		firstSeen := now.Add(-time.Duration(rng.Int64N(int64(window))))
		lastSeen := firstSeen

		sessions := 1 + rng.IntN(opts.MaxSessions)
		start := firstSeen
		for s := 0; s < sessions && start.Before(now); s++ {
			sessionID := uuid.NewString()
			events := 1 + rng.IntN(opts.MaxEvents)
			at := start
			for e := 0; e < events; e++ {
				name := eventNames[0]
				if e > 0 {
					name = eventNames[rng.IntN(len(eventNames))]
				}
				props, _ := json.Marshal(map[string]string{"screen": screens[rng.IntN(len(screens))], "platform": platform})
				if _, err := insertEvent.ExecContext(ctx, uuid.NewString(), appID, sessionID, userID, name, string(props), ts(at)); err != nil {
					return err
				}
				if e < events-1 {
					at = at.Add(time.Duration(5+rng.IntN(90)) * time.Second)
				}
			}
			if _, err := insertSession.ExecContext(ctx, sessionID, appID, userID, platform, ts(start), int64(at.Sub(start).Seconds())); err != nil {
				return err
			}
			lastSeen = at
			start = at.Add(time.Duration(1+rng.IntN(72)) * time.Hour)
		}

		country := countries[rng.IntN(len(countries))]
		if _, err := insertUser.ExecContext(ctx, appID, userID, country, platform, ts(firstSeen), ts(lastSeen)); err != nil {
			return err
		}
	}
	return nil
}
