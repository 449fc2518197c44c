package apiclient

import "time"

type App struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// RealtimeStats is a snapshot of activity in the trailing time range.
type RealtimeStats struct {
	ActiveUsers     int64     `json:"activeUsers"`
	ActiveSessions  int64     `json:"activeSessions"`
	EventsPerMinute float64   `json:"eventsPerMinute"`
	TimeRange       string    `json:"timeRange"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type Overview struct {
	TotalUsers         int64   `json:"totalUsers"`
	NewUsers           int64   `json:"newUsers"`
	TotalSessions      int64   `json:"totalSessions"`
	TotalEvents        int64   `json:"totalEvents"`
	AvgSessionSeconds  float64 `json:"avgSessionSeconds"`
	BounceRate         float64 `json:"bounceRate"`
	UsersChangePercent float64 `json:"usersChangePercent"`
}

type Point struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

type TimeSeries struct {
	Metric string  `json:"metric"`
	Range  string  `json:"range"`
	Points []Point `json:"points"`
}

func (ts TimeSeries) IsEmpty() bool { return len(ts.Points) == 0 }

// Bucket is one slice of a distribution (country, platform, event name).
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type User struct {
	ID        string    `json:"id"`
	Country   string    `json:"country"`
	Platform  string    `json:"platform"`
	Sessions  int64     `json:"sessions"`
	Events    int64     `json:"events"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

type Session struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Platform        string    `json:"platform"`
	StartedAt       time.Time `json:"startedAt"`
	DurationSeconds int64     `json:"durationSeconds"`
	EventCount      int64     `json:"eventCount"`
}

type Event struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	UserID     string            `json:"userId"`
	SessionID  string            `json:"sessionId"`
	Properties map[string]string `json:"properties,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Page is one page of a paginated list.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

// TotalPages returns the page count, at least 1.
func (p Page[T]) TotalPages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 1
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

func (p Page[T]) IsEmpty() bool { return len(p.Items) == 0 }

type Settings struct {
	AppName        string `json:"appName"`
	Timezone       string `json:"timezone"`
	RetentionDays  int    `json:"retentionDays"`
	SessionTimeout int    `json:"sessionTimeoutMinutes"`
	TrackAnonymous bool   `json:"trackAnonymous"`
}

type APIKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Prefix    string     `json:"prefix"`
	Key       string     `json:"key,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	LastUsed  *time.Time `json:"lastUsedAt,omitempty"`
}

// Filters.

type PageParams struct {
	Page     int
	PageSize int
}

type SessionFilter struct {
	PageParams
	Platform string
}

type EventFilter struct {
	PageParams
	Name string
}

type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}
