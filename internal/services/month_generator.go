package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sharedspese/internal/allocation"
	"sharedspese/internal/calendar"
	"sharedspese/internal/core"
	"sharedspese/internal/storage"
)

// Lookahead is how many months, the current one included, a permanent
// session keeps materialised.
const Lookahead = 12

// maxAdvancePerSweep bounds how far one sweep moves a session that fell
// behind.
const maxAdvancePerSweep = 60

// GeneratorConfig holds configuration for the month generator
type GeneratorConfig struct {
	// SessionTimeout bounds the work done for one session during a sweep (default: 30s)
	SessionTimeout time.Duration

	// Concurrency is how many sessions a sweep processes at once (default: 4)
	Concurrency int
}

// DefaultGeneratorConfig returns sensible defaults
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		SessionTimeout: 30 * time.Second,
		Concurrency:    4,
	}
}

// SweepFailure records a session the sweep could not advance.
type SweepFailure struct {
	SessionID string
	Err       error
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Sessions int
	Advanced map[string]int // session id -> months appended
	Failures []SweepFailure
}

// MonthGenerator keeps permanent sessions materialised twelve months ahead.
type MonthGenerator struct {
	*Ledger
	config GeneratorConfig
}

func NewMonthGenerator(l *Ledger, config GeneratorConfig) *MonthGenerator {
	def := DefaultGeneratorConfig()
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = def.SessionTimeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	return &MonthGenerator{Ledger: l, config: config}
}

// declaredSplit is the distribution of the latest month that has one, or
// an equal split among accepted participants.
func declaredSplit(sess *core.Session, cal *calendar.Calendar) []core.Share {
	months := cal.Months()
	for i := len(months) - 1; i >= 0; i-- {
		if len(months[i].Distribution) > 0 {
			return months[i].Distribution
		}
	}
	return allocation.EqualSplit(sess.AcceptedParticipants())
}

func requirePermanent(sess *core.Session) error {
	if !sess.IsPermanent() {
		return core.Invalid("session", "session %s is not permanent", sess.ID)
	}
	return nil
}

// EnsureNextTwelveMonths materialises the current month and the eleven
// following ones, carrying the session's declared split. It returns the
// months it created.
func (g *MonthGenerator) EnsureNextTwelveMonths(ctx context.Context, sessionID string, now time.Time) ([]core.YearMonth, error) {
	var created []core.YearMonth
	_, err := g.mutate(ctx, "ensure_months", sessionID, func(tx storage.Store, sess *core.Session, cal *calendar.Calendar) ([]core.YearMonth, error) {
		created = nil
		if err := requirePermanent(sess); err != nil {
			return nil, err
		}
		shares := declaredSplit(sess, cal)
		start := core.YM(now)
		for i := 0; i < Lookahead; i++ {
			m, isNew := cal.Ensure(start.AddMonths(i))
			if !isNew {
				continue
			}
			m.Distribution = append([]core.Share(nil), shares...)
			created = append(created, m.YearMonth)
		}
		return created, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ensure months: %w", err)
	}

	if len(created) > 0 {
		slog.InfoContext(ctx, "Materialised months",
			"session_id", sessionID,
			"created", len(created),
			"first", created[0].String())
	}
	return created, nil
}

// CheckAndAdvance appends the month after the latest materialised one
// when the latest is earlier than eleven months from now. The new month
// carries the previous month's split.
func (g *MonthGenerator) CheckAndAdvance(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	var next core.YearMonth
	advanced := false
	_, err := g.mutate(ctx, "check_and_advance", sessionID, func(tx storage.Store, sess *core.Session, cal *calendar.Calendar) ([]core.YearMonth, error) {
		advanced = false
		if !sess.IsPermanent() {
			return nil, nil
		}

		target := core.YM(now).AddMonths(Lookahead - 1)
		latest, ok := cal.Latest()
		var shares []core.Share
		switch {
		case !ok:
			next = core.YM(now)
			shares = allocation.EqualSplit(sess.AcceptedParticipants())
		case latest.Before(target):
			next = latest.Next()
			prev, _ := cal.Month(latest)
			shares = prev.Distribution
			if len(shares) == 0 {
				shares = declaredSplit(sess, cal)
			}
		default:
			return nil, nil
		}

		m, _ := cal.Ensure(next)
		m.Distribution = append([]core.Share(nil), shares...)
		advanced = true
		return []core.YearMonth{next}, nil
	})
	if err != nil {
		return false, fmt.Errorf("check and advance: %w", err)
	}

	if advanced {
		slog.InfoContext(ctx, "Session advanced",
			"session_id", sessionID,
			"month", next.String())
	}
	return advanced, nil
}

// RebalanceAllMonths overwrites the split of every materialised month and
// regenerates them. Nil shares mean an equal split among accepted
// participants.
func (g *MonthGenerator) RebalanceAllMonths(ctx context.Context, sessionID string, shares []core.Share) (*ChangeResult, error) {
	res, err := g.mutate(ctx, "rebalance", sessionID, func(tx storage.Store, sess *core.Session, cal *calendar.Calendar) ([]core.YearMonth, error) {
		resolved, err := resolveShares(sess, shares)
		if err != nil {
			return nil, err
		}
		return overwriteDistribution(cal, cal.Months(), resolved)
	})
	if err != nil {
		return nil, fmt.Errorf("rebalance: %w", err)
	}

	slog.InfoContext(ctx, "Session rebalanced",
		"session_id", sessionID,
		"months", len(res.Touched),
		"allocations", len(res.Allocations),
		"sync_failures", len(res.Sync.Failures))
	return res, nil
}

// Sweep advances every active permanent session. Each session gets its
// own timeout; a failing session is recorded and the rest continue.
func (g *MonthGenerator) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	ids, err := g.store.ListActivePermanentSessions(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list permanent sessions: %w", err)
	}

	report := SweepReport{Sessions: len(ids), Advanced: map[string]int{}}
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.config.Concurrency)
	for _, id := range ids {
		eg.Go(func() error {
			n, err := g.sweepSession(egCtx, id, now)

			mu.Lock()
			defer mu.Unlock()
			if n > 0 {
				report.Advanced[id] = n
			}
			if err != nil {
				slog.ErrorContext(egCtx, "Failed to advance session",
					"session_id", id,
					"error", err)
				report.Failures = append(report.Failures, SweepFailure{SessionID: id, Err: err})
			}
			return nil
		})
	}
	_ = eg.Wait()

	slog.InfoContext(ctx, "Month sweep completed",
		"sessions", report.Sessions,
		"advanced", len(report.Advanced),
		"failed", len(report.Failures))
	return report, nil
}

func (g *MonthGenerator) sweepSession(ctx context.Context, sessionID string, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.SessionTimeout)
	defer cancel()

	n := 0
	for n < maxAdvancePerSweep {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		advanced, err := g.CheckAndAdvance(ctx, sessionID, now)
		if err != nil {
			return n, err
		}
		if !advanced {
			break
		}
		n++
	}
	return n, nil
}
