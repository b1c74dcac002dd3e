package broadcast

import (
	"context"
	"log"
	"time"

	"github.com/Timi0217/mixtapelive-sub000/internal/gateway"
	"github.com/Timi0217/mixtapelive-sub000/internal/platform"
)

// Poller asks the music platform what each live curator is playing and
// broadcasts track-changed when the track identity differs from the
// cached snapshot.
type Poller struct {
	svc      *Service
	adapter  platform.Adapter
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewPoller(svc *Service, adapter platform.Adapter, interval time.Duration) *Poller {
	return &Poller{
		svc:      svc,
		adapter:  adapter,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop halts future ticks and waits for an in-flight poll to finish.
func (p *Poller) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Printf("🎧 Track poller started (every %s)", p.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one pass over the live index. A slow or failing curator must
// not delay the rest, so each is handled in isolation.
func (p *Poller) Poll(ctx context.Context) {
	ids, err := p.svc.cache.LiveIndex(ctx)
	if err != nil {
		log.Printf("⚠️ Live index unavailable, skipping poll: %v", err)
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := p.pollOne(ctx, id); err != nil {
			pollErrors.Inc()
			log.Printf("⚠️ Poll failed for session %s: %v", id, err)
		}
	}
}

func (p *Poller) pollOne(ctx context.Context, sessionID string) error {
	session, err := p.svc.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil || !session.IsLive() {
		return nil
	}

	track, err := p.adapter.GetCurrentTrack(ctx, session.CuratorID)
	if err != nil {
		return err
	}
	if track == nil {
		// Curator isn't actively playing. Not an error, no event; the
		// old snapshot just ages out.
		return nil
	}

	prev, err := p.svc.cache.GetTrackSnapshot(ctx, session.CuratorID)
	if err != nil {
		log.Printf("⚠️ Snapshot read failed for %s: %v", session.CuratorID, err)
	}

	changed := !track.Same(prev)

	// Re-cache on every successful poll so the snapshot stays fresh for
	// joiners; emit only when the identity actually changed.
	if err := p.svc.cache.SetTrackSnapshot(ctx, session.CuratorID, track, p.svc.trackTTL); err != nil {
		log.Printf("⚠️ Snapshot write failed for %s: %v", session.CuratorID, err)
	}

	if changed {
		trackChanges.Inc()
		log.Printf("🎵 Track changed in %s: %s - %s", sessionID, track.ArtistName, track.TrackName)
		p.svc.hub.ToRoom(sessionID, gateway.NewEvent(gateway.EventTrackChanged, track))
	}
	return nil
}
