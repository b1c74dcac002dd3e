package models

import "time"

// Session statuses. A curator has at most one "live" session at a time.
// The presence cache's active-session key is what enforces that, not the DB.
const (
	StatusLive  = "live"
	StatusEnded = "ended"
)

// Caption is required and trimmed before validation.
const MaxCaptionLength = 50

// Session is one curator's live listening event, bounded by start/stop
// or by the inactivity auto-end.
type Session struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	CuratorID string `gorm:"type:uuid;index:idx_sessions_curator_status" json:"curator_id"`
	Status    string `gorm:"type:varchar(20);index:idx_sessions_curator_status" json:"status"`
	Caption   string `gorm:"type:varchar(50);not null" json:"caption"`

	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"` // NULL while live
	LastHeartbeatAt time.Time  `gorm:"index" json:"last_heartbeat_at"`

	// Best-effort counters. PeakListeners only ever goes up
	// (compare-and-bump in the store); TotalMessages is synced from the
	// chat table rather than incremented independently.
	PeakListeners int `gorm:"default:0" json:"peak_listeners"`
	TotalMessages int `gorm:"default:0" json:"total_messages"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (Session) TableName() string {
	return "sessions"
}

// IsLive reports whether the session is still accepting listeners and chat.
func (s *Session) IsLive() bool {
	return s.Status == StatusLive
}

// Duration is the elapsed broadcast time, using EndedAt when set.
func (s *Session) Duration() time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

// Membership records one listener's presence in one session.
// LeftAt == nil means currently listening.
type Membership struct {
	ID        uint       `gorm:"primaryKey" json:"-"`
	SessionID string     `gorm:"type:uuid;uniqueIndex:idx_membership_session_user" json:"session_id"`
	UserID    string     `gorm:"type:uuid;uniqueIndex:idx_membership_session_user" json:"user_id"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `gorm:"index" json:"left_at,omitempty"`
}

func (Membership) TableName() string {
	return "memberships"
}

// IsActive reports whether the listener is still in the room.
func (m *Membership) IsActive() bool {
	return m.LeftAt == nil
}
