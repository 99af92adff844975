package gate

import (
	"context"
	"sync"
	"time"

	"dealline/internal/config"
)

// Gate fronts every mutating request: a per-actor sliding-window rate
// limit followed by a per-engagement lease. Both must pass before the
// engine sees the request.
type Gate struct {
	Store    Store
	Limit    int
	Window   time.Duration
	LeaseTTL time.Duration
	Now      func() time.Time

	mu     sync.Mutex
	leases map[string]lease
}

type lease struct {
	ownerID   string
	expiresAt time.Time
}

// New builds a gate from config. A non-empty redis address selects the
// shared Redis window store; otherwise admission counting is process
// local.
func New(cfg *config.Config) *Gate {
	var store Store
	if cfg.Gate.RedisAddr != "" {
		store = NewRedisStore(cfg.Gate.RedisAddr)
	} else {
		store = NewMemoryStore()
	}
	return &Gate{
		Store:    store,
		Limit:    cfg.Gate.RequestsPerWindow,
		Window:   time.Duration(cfg.Gate.WindowSeconds) * time.Second,
		LeaseTTL: time.Duration(cfg.Gate.LeaseTTLSeconds) * time.Second,
		Now:      time.Now,
		leases:   map[string]lease{},
	}
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Admit checks the actor's window and, if the request targets an
// engagement, takes the engagement lease. The caller must Release after
// the transition completes; an unreleased lease lapses at the TTL.
func (g *Gate) Admit(ctx context.Context, actorID, engagementID string) error {
	ok, retryAfter, err := g.Store.Allow(ctx, actorID, g.Limit, g.Window, g.now())
	if err != nil {
		return err
	}
	if !ok {
		return RateLimitedError{ActorID: actorID, RetryAfter: retryAfter}
	}
	if engagementID == "" {
		return nil
	}
	return g.acquire(actorID, engagementID)
}

func (g *Gate) acquire(actorID, engagementID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	// Exclusive even against the holder: a second request from the same
	// actor is exactly the duplicate the lease exists to stop.
	if l, ok := g.leases[engagementID]; ok && now.Before(l.expiresAt) {
		return ErrAlreadyInFlight
	}
	g.leases[engagementID] = lease{ownerID: actorID, expiresAt: now.Add(g.LeaseTTL)}
	return nil
}

// Release frees an engagement lease early. Only the lease owner can
// release; anyone else's lease is left to expire.
func (g *Gate) Release(actorID, engagementID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.leases[engagementID]; ok && l.ownerID == actorID {
		delete(g.leases, engagementID)
	}
}

// Prune drops expired leases. The map only grows while requests arrive,
// so a periodic prune keeps it bounded.
func (g *Gate) Prune() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for id, l := range g.leases {
		if !now.Before(l.expiresAt) {
			delete(g.leases, id)
		}
	}
}
