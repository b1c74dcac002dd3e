// Package platform talks to the external music service to find out what a
// curator is playing right now. Full OAuth flows live elsewhere; this
// package only needs per-curator access tokens and a refresh hook.
package platform

import (
	"context"
	"errors"

	"github.com/Timi0217/mixtapelive-sub000/internal/models"
)

// ErrAuthExpired signals that the curator's access token was rejected.
// The adapter refreshes and retries once before surfacing it.
var ErrAuthExpired = errors.New("platform: access token expired")

// Adapter fetches a curator's currently-playing track.
// (nil, nil) means the curator is not actively playing, which is normal
// and never an error.
type Adapter interface {
	GetCurrentTrack(ctx context.Context, curatorID string) (*models.TrackSnapshot, error)
}

// TokenSource provides per-curator platform tokens. The implementation
// (OAuth exchange, refresh-token storage) is an external collaborator.
type TokenSource interface {
	Token(ctx context.Context, curatorID string) (string, error)
	Refresh(ctx context.Context, curatorID string) (string, error)
}
