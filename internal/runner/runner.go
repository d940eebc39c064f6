// Package runner sequences one synchronization run: authenticate, fetch both
// sources behind a barrier, normalize, reconcile against the dedup store,
// emit the calendar, and report a summary.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"duesync/internal/assignment"
	"duesync/internal/config"
	"duesync/internal/dedup"
	"duesync/internal/ics"
	"duesync/internal/logging"
)

// State is one step of the run's state machine. Transitions are strictly
// forward; Failed is terminal and reachable from anywhere.
type State int

const (
	StateInit State = iota
	StateAuthenticating
	StateFetching
	StateNormalizing
	StateReconciling
	StateEmitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAuthenticating:
		return "authenticating"
	case StateFetching:
		return "fetching"
	case StateNormalizing:
		return "normalizing"
	case StateReconciling:
		return "reconciling"
	case StateEmitting:
		return "emitting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrAllSourcesFailed means no configured source produced data; the run has
// nothing trustworthy to emit.
var ErrAllSourcesFailed = errors.New("all configured sources failed")

// ErrLocked means another sync is already running against the same state.
var ErrLocked = errors.New("another sync is already running")

// Source is one assignment provider. Fetch is consumed once per run.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]assignment.Raw, error)
}

// AuthSource is a Source that needs an authentication step before fetching
// (the driven-browser scrape source). Authentication failure is fatal to the
// source, not to the run.
type AuthSource interface {
	Source
	Authenticate(ctx context.Context) error
}

// Summary is the user-visible result of one run.
type Summary struct {
	New       int
	Updated   int
	Unchanged int
	// Skipped counts records dropped by normalization (missing/unparseable
	// due dates) plus whole courses skipped inside the scrape source.
	Skipped int
	Pruned  int

	// Assignments is the total emitted to the calendar.
	Assignments int

	// SourceErrors maps a source name to its failure; a source absent from
	// the map succeeded.
	SourceErrors map[string]error
}

// Diagnosis distinguishes "nothing due" from "sources unreachable" for the
// final user-facing line.
func (s Summary) Diagnosis() string {
	switch {
	case len(s.SourceErrors) > 0 && s.Assignments == 0:
		return "sources unreachable"
	case len(s.SourceErrors) > 0:
		return "partial success"
	case s.Assignments == 0:
		return "0 assignments found (likely misconfiguration)"
	default:
		return "success"
	}
}

// Runner owns one run's resources: the dedup store, the run lock, and the
// output file. Sources are injected so the state machine tests with fakes.
type Runner struct {
	cfg     *config.Config
	sources []Source
	logger  *slog.Logger
	now     func() time.Time

	state State
}

// New returns a Runner over the given sources.
func New(cfg *config.Config, sources []Source, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{cfg: cfg, sources: sources, logger: logger, now: time.Now, state: StateInit}
}

// State returns the runner's current state.
func (r *Runner) State() State { return r.state }

func (r *Runner) transition(ctx context.Context, next State) {
	r.logger.DebugContext(ctx, "state transition", "from", r.state, "to", next)
	r.state = next
}

func (r *Runner) fail(ctx context.Context, err error) (Summary, error) {
	r.transition(ctx, StateFailed)
	return Summary{}, err
}

// fetchResult is one source's contribution, produced behind the barrier.
type fetchResult struct {
	name string
	raws []assignment.Raw
	err  error
}

// Run executes one synchronization. The returned error is non-nil only when
// the run as a whole failed: every configured source failed, the lock was
// held, or a local resource (store, output file) broke. A single failed
// source is reported in the Summary, not as an error.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if len(r.sources) == 0 {
		return r.fail(ctx, fmt.Errorf("no sources configured"))
	}

	// One run at a time: the dedup store and session file are not safe for
	// concurrent syncs.
	lock := flock.New(r.cfg.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return r.fail(ctx, fmt.Errorf("acquire run lock: %w", err))
	}
	if !locked {
		return r.fail(ctx, fmt.Errorf("lock %s held: %w", r.cfg.LockPath, ErrLocked))
	}
	defer lock.Unlock()

	store, err := dedup.Open(r.cfg.StatePath)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("open dedup store: %w", err))
	}
	defer store.Close()

	summary := Summary{SourceErrors: map[string]error{}}

	// Authentication precedes fetching and is skipped when no source needs
	// it. A source that cannot authenticate is dropped for this run.
	r.transition(ctx, StateAuthenticating)
	active := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		auth, needsAuth := src.(AuthSource)
		if !needsAuth {
			active = append(active, src)
			continue
		}
		if err := auth.Authenticate(ctx); err != nil {
			r.logger.ErrorContext(ctx, "source authentication failed, skipping source",
				"source", src.Name(), "error", err)
			summary.SourceErrors[src.Name()] = err
			continue
		}
		active = append(active, src)
	}

	// Both fetches run as independent I/O tasks; the Wait is the barrier
	// before normalization.
	r.transition(ctx, StateFetching)
	results := make([]fetchResult, len(active))
	g, fetchCtx := errgroup.WithContext(ctx)
	for i, src := range active {
		g.Go(func() error {
			raws, err := src.Fetch(fetchCtx)
			results[i] = fetchResult{name: src.Name(), raws: raws, err: err}
			return nil // failures are isolated per source
		})
	}
	_ = g.Wait()

	var raws []assignment.Raw
	for _, res := range results {
		if res.err != nil {
			r.logger.ErrorContext(ctx, "source fetch failed", "source", res.name, "error", res.err)
			summary.SourceErrors[res.name] = res.err
			continue
		}
		r.logger.InfoContext(ctx, "source fetched", "source", res.name, "assignments", len(res.raws))
		raws = append(raws, res.raws...)
	}
	if len(summary.SourceErrors) == len(r.sources) {
		return r.fail(ctx, fmt.Errorf("%w: %v", ErrAllSourcesFailed, summary.SourceErrors))
	}

	r.transition(ctx, StateNormalizing)
	loc, err := r.cfg.Location()
	if err != nil {
		return r.fail(ctx, err)
	}
	normalizer := assignment.NewNormalizer(loc, r.cfg.FingerprintFields)
	canonicals := make([]assignment.Canonical, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for _, raw := range raws {
		c, err := normalizer.Normalize(raw)
		if err != nil {
			r.logger.WarnContext(ctx, "record skipped", "source", raw.Source, "error", err)
			summary.Skipped++
			continue
		}
		// Re-fetch noise: the same assignment can surface more than once in
		// one run (re-crawled whitespace, a course listed twice). One
		// fingerprint, one record.
		if seen[c.Fingerprint] {
			r.logger.DebugContext(ctx, "collapsed duplicate record",
				"source", raw.Source, "title", c.Title, "fingerprint", c.Fingerprint)
			continue
		}
		seen[c.Fingerprint] = true
		canonicals = append(canonicals, c)
	}

	r.transition(ctx, StateReconciling)
	now := r.now()
	outcomes, err := store.Reconcile(canonicals, now)
	if err != nil {
		return r.fail(ctx, err)
	}
	for _, o := range outcomes {
		switch o.Status {
		case dedup.StatusNew:
			summary.New++
		case dedup.StatusUpdated:
			summary.Updated++
		case dedup.StatusUnchanged:
			summary.Unchanged++
		}
	}
	summary.Assignments = len(outcomes)

	r.transition(ctx, StateEmitting)
	emitter := ics.NewEmitter(r.logger)
	cal, err := emitter.Build(outcomes, r.cfg.Offsets())
	if err != nil {
		return r.fail(ctx, err)
	}
	if err := emitter.WriteFile(r.cfg.OutputPath, cal); err != nil {
		return r.fail(ctx, err)
	}

	// Age out fingerprints not seen within the grace window. Done after
	// emission so a temporarily unreachable source never drops live events.
	if pruned, err := store.Prune(now, r.cfg.GraceWindow.Std()); err != nil {
		r.logger.WarnContext(ctx, "prune failed", "error", err)
	} else {
		summary.Pruned = pruned
	}

	r.transition(ctx, StateDone)
	r.logger.InfoContext(ctx, "run complete",
		"new", summary.New, "updated", summary.Updated, "unchanged", summary.Unchanged,
		"skipped", summary.Skipped, "pruned", summary.Pruned, "diagnosis", summary.Diagnosis())
	return summary, nil
}
