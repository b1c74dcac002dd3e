package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Timi0217/mixtapelive-sub000/internal/models"
)

// SpotifyAdapter implements Adapter against the Spotify Web API.
type SpotifyAdapter struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
}

func NewSpotifyAdapter(baseURL string, timeout time.Duration, tokens TokenSource) *SpotifyAdapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SpotifyAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// GetCurrentTrack fetches the curator's playback state. A 204 (nothing
// playing) returns (nil, nil). A 401 triggers one token refresh + retry;
// a second 401 surfaces ErrAuthExpired.
func (s *SpotifyAdapter) GetCurrentTrack(ctx context.Context, curatorID string) (*models.TrackSnapshot, error) {
	token, err := s.tokens.Token(ctx, curatorID)
	if err != nil {
		return nil, err
	}

	snap, err := s.fetch(ctx, curatorID, token)
	if err == ErrAuthExpired {
		token, err = s.tokens.Refresh(ctx, curatorID)
		if err != nil {
			return nil, err
		}
		return s.fetch(ctx, curatorID, token)
	}
	return snap, err
}

func (s *SpotifyAdapter) fetch(ctx context.Context, curatorID, token string) (*models.TrackSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/me/player/currently-playing", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil // nothing playing
	case http.StatusUnauthorized:
		return nil, ErrAuthExpired
	case http.StatusOK:
		// fall through to parse
	default:
		return nil, fmt.Errorf("platform: status %d", resp.StatusCode)
	}

	var result struct {
		IsPlaying bool `json:"is_playing"`
		Item      struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Album struct {
				Images []struct {
					URL string `json:"url"`
				} `json:"images"`
			} `json:"album"`
		} `json:"item"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	// Paused or an ad break: treat as not playing
	if !result.IsPlaying || result.Item.ID == "" {
		return nil, nil
	}

	snap := &models.TrackSnapshot{
		CuratorID: curatorID,
		TrackID:   result.Item.ID,
		TrackName: result.Item.Name,
		Platform:  "spotify",
		StartedAt: time.Now(),
	}
	if len(result.Item.Artists) > 0 {
		snap.ArtistName = result.Item.Artists[0].Name
	}
	if len(result.Item.Album.Images) > 0 {
		snap.AlbumArtURL = result.Item.Album.Images[0].URL
	}
	return snap, nil
}
