// Package poller periodically queries every configured game server and
// records the outcome in the status store.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/woozymasta/herald/internal/a2s"
	"github.com/woozymasta/herald/internal/models"
	"github.com/woozymasta/herald/internal/targets"
)

// DefaultWorkers is used when Options.Workers is not positive.
const DefaultWorkers = 10

// Querier runs a single A2S_INFO query; *a2s.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, host string, port int) (*a2s.Info, error)
}

// Store receives query outcomes; *storage.Repository satisfies it.
type Store interface {
	UpsertStatus(s models.ServerStatus) error
	MarkFailed(s models.ServerStatus) error
}

// Locator resolves a server host to a country code; *geoip.Provider satisfies it.
type Locator interface {
	LookupCountry(ctx context.Context, host string) string
}

// Options tune the poller.
type Options struct {
	// OnCycle, when set, is called with the results of every finished cycle after the initial one.
	OnCycle func([]Result)

	// Interval between scheduled cycles.
	Interval time.Duration

	// Workers bounds the concurrent queries of a cycle.
	Workers int

	// QueriesPerSecond paces queries across all workers, 0 disables pacing.
	QueriesPerSecond float64
}

// Result is the outcome of one target query.
type Result struct {
	Err      error
	Info     *a2s.Info
	Target   targets.Target
	Duration time.Duration
}

// Online reports whether the query succeeded.
func (r Result) Online() bool {
	return r.Err == nil && r.Info != nil
}

// Poller queries a target list on a schedule.
type Poller struct {
	client  Querier
	store   Store
	geo     Locator
	limiter *rate.Limiter
	targets *targets.Set
	trigger chan struct{}
	logger  zerolog.Logger
	opts    Options
	mu      sync.RWMutex
}

// New creates a poller. geo may be nil.
func New(client Querier, store Store, geo Locator, opts Options) *Poller {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}

	p := &Poller{
		client:  client,
		store:   store,
		geo:     geo,
		opts:    opts,
		targets: targets.NewSet(),
		trigger: make(chan struct{}, 1),
		logger:  log.With().Str("component", "poller").Logger(),
	}
	if opts.QueriesPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.QueriesPerSecond), 1)
	}

	return p
}

// SetTargets replaces the target list. Cycles already running keep the old list.
func (p *Poller) SetTargets(list []targets.Target) {
	set := targets.NewSet(list...)

	p.mu.Lock()
	p.targets = set
	p.mu.Unlock()
}

// AddTarget adds t to the list and reports whether it was new.
func (p *Poller) AddTarget(t targets.Target) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.targets.Clone()
	added := set.Add(t)
	p.targets = set

	return added
}

// RemoveTarget drops the target with key and reports whether it was listed.
func (p *Poller) RemoveTarget(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.targets.Clone()
	removed := set.Remove(key)
	p.targets = set

	return removed
}

// Targets returns the current list.
func (p *Poller) Targets() []targets.Target {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.targets.Slice()
}

// Keys returns the keys of the current list.
func (p *Poller) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.targets.Keys()
}

// Trigger requests an extra cycle from Run. Requests made while one is pending are merged.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run polls once immediately to fill the store, then on every interval tick and Trigger call,
// until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().
		Dur("interval", p.opts.Interval).
		Int("workers", p.opts.Workers).
		Int("targets", len(p.Targets())).
		Msg("Poller started")

	p.cycle(ctx, false)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return nil
		case <-ticker.C:
			p.cycle(ctx, true)
		case <-p.trigger:
			p.cycle(ctx, true)
		}
	}
}

func (p *Poller) cycle(ctx context.Context, notify bool) {
	start := time.Now()
	results := p.PollOnce(ctx)
	if ctx.Err() != nil {
		return
	}

	online := 0
	for _, r := range results {
		if r.Online() {
			online++
		}
	}
	p.logger.Info().
		Int("targets", len(results)).
		Int("online", online).
		Dur("took", time.Since(start)).
		Msg("Poll cycle finished")

	if notify && p.opts.OnCycle != nil {
		p.opts.OnCycle(results)
	}
}

// PollOnce queries every target through the worker pool and stores the outcomes.
// Results follow the target order.
func (p *Poller) PollOnce(ctx context.Context) []Result {
	list := p.Targets()
	results := make([]Result, len(list))
	if len(list) == 0 {
		return results
	}

	jobs := make(chan int, len(list))
	for i := range list {
		jobs <- i
	}
	close(jobs)

	workers := min(p.opts.Workers, len(list))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.PollTarget(ctx, list[i])
			}
		}()
	}
	wg.Wait()

	return results
}

// PollTarget queries one target and stores the outcome.
// Nothing is stored when ctx ends before or during the query.
func (p *Poller) PollTarget(ctx context.Context, t targets.Target) Result {
	res := Result{Target: t}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
	}

	logCtx := p.logger.With().Str("target", t.Name).Str("address", t.Address()).Logger()

	start := time.Now()
	res.Info, res.Err = p.client.Query(ctx, t.Host, t.Port)
	res.Duration = time.Since(start)

	if ctx.Err() != nil || errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
		return res
	}

	status := models.ServerStatus{
		Key:         t.Key(),
		Name:        t.Name,
		Host:        t.Host,
		Port:        t.Port,
		QueryMS:     res.Duration.Milliseconds(),
		LastChecked: time.Now(),
	}

	if res.Err != nil {
		status.LastError = res.Err.Error()
		status.LastErrorKind = a2s.KindName(res.Err)
		logCtx.Debug().Err(res.Err).Str("kind", status.LastErrorKind).Msg("Server query failed")

		if err := p.store.MarkFailed(status); err != nil {
			logCtx.Error().Err(err).Msg("Failed to record query failure")
		}
		return res
	}

	status.ApplyInfo(res.Info)
	if p.geo != nil {
		status.CountryCode = p.geo.LookupCountry(ctx, t.Host)
	}

	if err := p.store.UpsertStatus(status); err != nil {
		logCtx.Error().Err(err).Msg("Failed to store server status")
	} else {
		logCtx.Trace().
			Str("map", res.Info.Map).
			Uint8("players", res.Info.Players).
			Uint8("max_players", res.Info.MaxPlayers).
			Msg("Server status updated")
	}

	return res
}
