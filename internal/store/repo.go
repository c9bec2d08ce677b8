package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	UserID string // empty = all users
	Limit  int    // max results (0 = unlimited)
	After  int64  // sequence > After
}

// ImportEventData captures one ingestion into a user's progress.
type ImportEventData struct {
	BatchID  string
	UserID   string
	Source   string // "manual", "file", "sharecode"
	Strategy string
	Found    int
	Added    int
}

// ImportEvent is a stored ImportEventData.
type ImportEvent struct {
	ID        int64
	Sequence  int64
	Timestamp time.Time
	ImportEventData
}

// RefreshEventData captures one catalog refresh.
type RefreshEventData struct {
	Forced            bool
	UsedFallback      bool
	Remote            int
	Downloaded        int
	Skipped           int
	Failed            int
	Missing           int
	Extra             int
	Invalid           int
	TotalAchievements int
	Duration          time.Duration
	ErrorMessage      string
}

// RefreshEvent is a stored RefreshEventData.
type RefreshEvent struct {
	ID        int64
	Sequence  int64
	Timestamp time.Time
	RefreshEventData
}

// EventRepo provides append and query access to domain events.
type EventRepo interface {
	// AppendImport records an ingestion into a user's progress.
	AppendImport(ctx context.Context, data ImportEventData) error

	// QueryImports returns import events, newest first.
	QueryImports(ctx context.Context, opts QueryOpts) ([]ImportEvent, error)

	// AppendRefresh records a catalog refresh.
	AppendRefresh(ctx context.Context, data RefreshEventData) error

	// LatestRefresh returns the most recent refresh, or nil if none exist.
	LatestRefresh(ctx context.Context) (*RefreshEvent, error)
}
