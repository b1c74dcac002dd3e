package broadcast

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Timi0217/mixtapelive-sub000/internal/gateway"
)

// Monitor sweeps live sessions on a fixed interval and drives the
// heartbeat state machine: quiet sessions get a warning, dead ones get
// auto-ended with the same teardown as an explicit stop.
type Monitor struct {
	svc          *Service
	warningAfter time.Duration
	autoEndAfter time.Duration
	interval     time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewMonitor(svc *Service, warningAfter, autoEndAfter, interval time.Duration) *Monitor {
	return &Monitor{
		svc:          svc,
		warningAfter: warningAfter,
		autoEndAfter: autoEndAfter,
		interval:     interval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop halts future ticks and waits for an in-flight sweep to finish.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Printf("💓 Heartbeat monitor started (sweep every %s, auto-end after %s)", m.interval, m.autoEndAfter)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep checks every live session once. An error on one session must not
// abort the sweep of the others, so each is processed in isolation.
func (m *Monitor) Sweep(ctx context.Context) {
	ids, err := m.svc.cache.LiveIndex(ctx)
	if err != nil {
		// Cache down: fall back to the store so dead sessions still
		// get ended eventually.
		log.Printf("⚠️ Live index unavailable, sweeping from store: %v", err)
		sessions, serr := m.svc.sessions.ListLive(ctx)
		if serr != nil {
			log.Printf("❌ Sweep aborted, store also unavailable: %v", serr)
			return
		}
		ids = make([]string, len(sessions))
		for i, sess := range sessions {
			ids[i] = sess.ID
		}
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := m.sweepOne(ctx, id); err != nil {
			sweepErrors.Inc()
			log.Printf("⚠️ Sweep failed for session %s: %v", id, err)
		}
	}
}

func (m *Monitor) sweepOne(ctx context.Context, sessionID string) error {
	session, err := m.svc.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil || !session.IsLive() {
		// Stale index entry; the safety TTLs will reap it
		return nil
	}

	age := m.svc.clk.Now().Sub(session.LastHeartbeatAt)
	switch {
	case age >= m.autoEndAfter:
		err := m.svc.End(ctx, session, ReasonInactivity)
		if err == nil {
			autoEnded.Inc()
		} else if err != ErrInactiveBroadcast {
			// ErrInactiveBroadcast means another path ended it first
			return err
		}
	case age >= m.warningAfter:
		// One warning per sweep tick while in the window. Repeats across
		// ticks are expected; the window is only a minute wide.
		remaining := m.autoEndAfter - age
		warningsSent.Inc()
		m.svc.hub.ToRoom(sessionID, gateway.NewEvent(gateway.EventInactivityWarning, gateway.WarningPayload{
			Message:          fmt.Sprintf("Broadcast will end in %d seconds without a heartbeat", int(remaining.Seconds())),
			SecondsRemaining: int(remaining.Seconds()),
		}))
	}
	return nil
}
