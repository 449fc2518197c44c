package devapi

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// scanFloat reads an aggregate that SQLite may return as a float, an integer,
// text or NULL. NULL (AVG over no rows) reads as 0.
func scanFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case []byte:
		f, _ := strconv.ParseFloat(string(n), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}

func sqlBool(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// scanOptionalTS parses a nullable timestamp column.
func scanOptionalTS(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// dataDir is $XDG_DATA_HOME/pulsemetric, or ~/.local/share/pulsemetric.
func dataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "pulsemetric"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "pulsemetric"), nil
}
