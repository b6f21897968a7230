package gate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/developingchet/sessiongate/internal/metrics"
	"github.com/developingchet/sessiongate/internal/rules"
	"github.com/developingchet/sessiongate/internal/storage"
	"github.com/rs/zerolog"
)

// Reloader periodically rebuilds the RuleSet projection and publishes it
// via atomic swap. Besides the timer it rebuilds immediately at startup, on
// configuration reload, and after every rule mutation (full rebuild policy).
type Reloader struct {
	repo     storage.Repository // nil when persistence is disabled
	cache    *storage.Cache     // nil when no snapshot cache is configured
	snap     *rules.Snapshot
	static   atomic.Pointer[rules.StaticRules]
	interval time.Duration
	kicks    chan string
	log      zerolog.Logger
}

// NewReloader creates a Reloader publishing into snap.
func NewReloader(repo storage.Repository, cache *storage.Cache, snap *rules.Snapshot,
	static rules.StaticRules, interval time.Duration, log zerolog.Logger) *Reloader {

	r := &Reloader{
		repo:     repo,
		cache:    cache,
		snap:     snap,
		interval: interval,
		kicks:    make(chan string, 8),
		log:      log,
	}
	r.static.Store(&static)
	return r
}

// SetStatic swaps the static configuration lists on a config reload. The
// change takes effect on the next rebuild; pair with Kick.
func (r *Reloader) SetStatic(static rules.StaticRules) {
	r.static.Store(&static)
}

// Kick requests an immediate rebuild. Non-blocking; coalesces when the
// trigger buffer is full.
func (r *Reloader) Kick(trigger string) {
	select {
	case r.kicks <- trigger:
	default:
		r.log.Debug().Str("trigger", trigger).Msg("rebuild already pending")
	}
}

// Run performs the startup rebuild and then loops until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	r.Reload(ctx, "startup")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Reload(ctx, "periodic")
		case trigger := <-r.kicks:
			r.Reload(ctx, trigger)
		}
	}
}

// Reload rebuilds the RuleSet and swaps it in. A repository failure keeps
// the previous set in place: stale-but-available beats serving an empty
// whitelist that would lock everyone out. When no set has ever been
// published, the bbolt snapshot cache is used as a fallback.
func (r *Reloader) Reload(ctx context.Context, trigger string) {
	now := time.Now().UTC()
	static := *r.static.Load()

	var persisted []rules.Rule
	if r.repo != nil {
		active, err := r.repo.Active(ctx)
		if err != nil {
			metrics.RebuildsTotal.WithLabelValues(trigger, "error").Inc()
			r.log.Error().Err(err).Str("trigger", trigger).Msg("rule store read failed; keeping previous ruleset")
			if r.snap.Current() == nil {
				r.loadFromCache()
			}
			return
		}
		persisted = active
	}

	set := rules.Build(static, persisted, now)
	r.snap.Swap(set)

	metrics.RebuildsTotal.WithLabelValues(trigger, "success").Inc()
	metrics.RulesetSize.WithLabelValues("ip").Set(float64(len(set.IPs)))
	metrics.RulesetSize.WithLabelValues("license").Set(float64(len(set.Licenses)))
	metrics.RulesetSize.WithLabelValues("steam_id").Set(float64(len(set.SteamIDs)))

	if r.cache != nil {
		if err := r.cache.Save(set); err != nil {
			r.log.Warn().Err(err).Msg("failed to cache ruleset snapshot")
		} else if size, err := r.cache.SizeBytes(); err == nil {
			metrics.CacheSizeBytes.Set(float64(size))
		}
	}

	r.log.Debug().Str("trigger", trigger).
		Int("ips", len(set.IPs)).Int("licenses", len(set.Licenses)).Int("steam_ids", len(set.SteamIDs)).
		Msg("ruleset rebuilt")
}

// loadFromCache publishes the last cached snapshot, if any.
func (r *Reloader) loadFromCache() {
	if r.cache == nil {
		return
	}
	cached, err := r.cache.Load()
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to load cached ruleset")
		return
	}
	if cached == nil {
		return
	}
	r.snap.Swap(cached)
	r.log.Warn().Time("built_at", cached.BuiltAt).Msg("serving cached ruleset until the store recovers")
}
