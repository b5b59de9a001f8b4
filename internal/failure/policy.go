package failure

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/recon/internal/fault"
)

// Observer receives resolution events. Used for metrics.
type Observer interface {
	ResolutionAttempted(kind string, resolved bool)
}

// Policy holds the static part of failure resolution: the ordered list of
// failure kinds a component declares it knows how to fix.
type Policy struct {
	fixable  []string
	logger   *slog.Logger
	observer Observer
}

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the logger used for resolution events.
func WithLogger(l *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = l
	}
}

// WithObserver sets an observer for resolution events.
func WithObserver(o Observer) Option {
	return func(p *Policy) {
		p.observer = o
	}
}

// NewPolicy creates a policy that tries the fixable kinds first, in order.
func NewPolicy(fixable []string, opts ...Option) *Policy {
	p := &Policy{
		fixable: slices.Clone(fixable),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fixable returns the declared fixable kinds in order.
func (p *Policy) Fixable() []string {
	return slices.Clone(p.fixable)
}

// NewSession starts the resolution state of one Commit call.
func (p *Policy) NewSession() *Session {
	return &Session{
		policy: p,
		tried:  make(map[string]bool),
	}
}

// Session is the per-commit resolution state. It implements Preprocessor.
//
// Each failure kind is processed at most once per session, so a commit that
// keeps reporting failures needs at most (distinct kinds + 1) attempts.
type Session struct {
	policy      *Policy
	tried       map[string]bool
	diagnostics []Diagnostic
	attempts    int
}

// Preprocess implements Preprocessor.
//
// Severity gate:
//  1. corruption rolls back
//  2. errors are resolved kind by kind, declared kinds first, then the
//     remaining kinds in the order they were first reported; the first kind
//     that resolves anything asks for a retry
//  3. whatever is left is reported in ascending severity and warnings are
//     cleared
func (s *Session) Preprocess(ctx context.Context, acc Accessor) Decision {
	s.attempts++
	if !acc.BeingCommitted() {
		return Continue
	}

	log := s.policy.logger.With("transaction", acc.TransactionName(), "attempt", s.attempts)

	severity := acc.Severity()
	if severity >= SeverityCorruption {
		log.Warn("document corruption reported, rolling back")
		return RollBack
	}

	if severity >= SeverityError {
		if s.fix(ctx, log, acc, s.policy.fixable) {
			return RetryCommit
		}
		if s.fix(ctx, log, acc, reportedKinds(acc.Records())) {
			return RetryCommit
		}
	}

	if severity >= SeverityWarning {
		records := slices.Clone(acc.Records())
		slices.SortStableFunc(records, func(a, b *Record) int {
			return int(a.Severity) - int(b.Severity)
		})
		for _, r := range records {
			s.diagnostics = append(s.diagnostics, FromRecord(r, Unresolved))
		}
		acc.DeleteWarnings()
	}

	return Continue
}

// fix resolves every permitted, not yet attempted record of each kind in
// order. It stops after the first kind that resolved at least one record.
func (s *Session) fix(ctx context.Context, log *slog.Logger, acc Accessor, kinds []string) bool {
	records := acc.Records()
	for _, kind := range kinds {
		if s.tried[kind] {
			continue
		}

		solved := 0
		seen := false
		for _, r := range records {
			if r.Kind != kind {
				continue
			}
			seen = true
			if !acc.ResolutionPermitted(r) {
				continue
			}
			if acc.AttemptedResolutions(r) > 0 {
				continue
			}

			if err := acc.Resolve(ctx, r); err != nil {
				if !fault.Is(err, fault.CodeAlreadyAttemptedResolution) {
					log.Warn("failure resolution failed", "kind", kind, "error", err)
				}
				s.observe(kind, false)
				continue
			}
			s.diagnostics = append(s.diagnostics, FromRecord(r, Resolved))
			s.observe(kind, true)
			solved++
		}

		if seen {
			s.tried[kind] = true
		}
		if solved > 0 {
			log.Debug("resolved failures", "kind", kind, "count", solved)
			return true
		}
	}
	return false
}

func (s *Session) observe(kind string, resolved bool) {
	if s.policy.observer != nil {
		s.policy.observer.ResolutionAttempted(kind, resolved)
	}
}

// Diagnostics returns the ranked diagnostics collected so far.
func (s *Session) Diagnostics() []Diagnostic {
	return slices.Clone(s.diagnostics)
}

// Attempts returns how many commit attempts were preprocessed.
func (s *Session) Attempts() int {
	return s.attempts
}

// reportedKinds returns distinct kinds in first-reported order.
func reportedKinds(records []*Record) []string {
	seen := make(map[string]bool)
	var kinds []string
	for _, r := range records {
		if !seen[r.Kind] {
			seen[r.Kind] = true
			kinds = append(kinds, r.Kind)
		}
	}
	return kinds
}
