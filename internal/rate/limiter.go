package rate

import (
	"context"
	"strings"
	"time"
)

// Identifier names one rate-limit budget.
type Identifier struct {
	SubjectType string
	SubjectID   string
	Action      string
}

// Rule bounds attempts per window. Max <= 0 disables the rule.
type Rule struct {
	Max    int
	Window time.Duration
}

// Enabled reports whether the rule limits anything.
func (r Rule) Enabled() bool {
	return r.Max > 0 && r.Window > 0
}

// Decision is the outcome of a single check.
type Decision struct {
	Allowed   bool
	Count     int64
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces fixed-window rules on top of a [CounterStore].
type Limiter struct {
	store  CounterStore
	prefix string
	now    func() time.Time
}

// New creates a [Limiter]. An empty prefix defaults to "ck".
func New(store CounterStore, prefix string, now func() time.Time) *Limiter {
	if prefix == "" {
		prefix = "ck"
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		store:  store,
		prefix: prefix,
		now:    now,
	}
}

// Key returns the counter key for id.
func (l *Limiter) Key(id Identifier) string {
	var b strings.Builder
	b.Grow(len(l.prefix) + len(id.SubjectType) + len(id.SubjectID) + len(id.Action) + 8)
	b.WriteString(l.prefix)
	b.WriteString(":rl:")
	b.WriteString(escapeComponent(id.SubjectType))
	b.WriteByte(':')
	b.WriteString(escapeComponent(id.SubjectID))
	b.WriteByte(':')
	b.WriteString(escapeComponent(id.Action))
	return b.String()
}

// Check counts one attempt against rule and reports whether it is admitted.
// Every call increments, including denied ones, so hammering a closed window
// does not reopen it early.
func (l *Limiter) Check(ctx context.Context, id Identifier, rule Rule) (Decision, error) {
	now := l.now()
	if !rule.Enabled() {
		return Decision{Allowed: true, Remaining: -1, ResetAt: now}, nil
	}
	if id.SubjectType == "" || id.SubjectID == "" || id.Action == "" {
		return Decision{}, ErrInvalidIdentifier
	}

	count, ttl, err := l.store.Increment(ctx, l.Key(id), rule.Window)
	if err != nil {
		return Decision{}, err
	}

	remaining := int64(rule.Max) - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(rule.Max),
		Count:     count,
		Remaining: int(remaining),
		ResetAt:   now.Add(ttl),
	}, nil
}

// Reset clears the budget for id.
func (l *Limiter) Reset(ctx context.Context, id Identifier) error {
	return l.store.Reset(ctx, l.Key(id))
}

func escapeComponent(s string) string {
	if !strings.ContainsAny(s, ":%") {
		return s
	}
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, ":", "%3A")
}
