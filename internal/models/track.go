package models

import "time"

// TrackSnapshot is what the poller last saw playing for a curator.
// It lives only in the presence cache with a short TTL (never in the DB)
// and can always be rebuilt from the platform on the next poll.
type TrackSnapshot struct {
	CuratorID   string    `json:"curator_id"`
	TrackID     string    `json:"track_id"`
	TrackName   string    `json:"track_name"`
	ArtistName  string    `json:"artist_name"`
	AlbumArtURL string    `json:"album_art_url,omitempty"`
	Platform    string    `json:"platform"`
	StartedAt   time.Time `json:"started_at"`
}

// Same reports whether two snapshots are the same playing track.
// Identity is the track, not playback position: a seek or a repeat of the
// same track does not count as a change.
func (t *TrackSnapshot) Same(other *TrackSnapshot) bool {
	if other == nil {
		return false
	}
	return t.TrackID == other.TrackID && t.Platform == other.Platform
}
