// Package reminder decides which deadline reminder, if any, is due for a
// pending confirmation.  It performs no I/O.
package reminder

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrInvalidTier is returned for a tier with an empty name or a
	// non-positive threshold.
	ErrInvalidTier = errors.New("invalid reminder tier")
	// ErrDuplicateTier is returned when two tiers share a name or threshold.
	ErrDuplicateTier = errors.New("duplicate reminder tier")
)

// Tier is one "time remaining" threshold.  It fires once per pending
// epoch, as soon as the time left before the deadline drops to Before.
type Tier struct {
	Name       string
	Before     time.Duration
	Priority   string
	TemplateID string
}

// DefaultTiers returns the 24h / 6h / 1h schedule.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "24h", Before: 24 * time.Hour, Priority: "medium", TemplateID: "deadline_24h"},
		{Name: "6h", Before: 6 * time.Hour, Priority: "high", TemplateID: "deadline_6h"},
		{Name: "1h", Before: time.Hour, Priority: "high", TemplateID: "deadline_1h"},
	}
}

// Policy holds an ordered set of tiers, least urgent first.
type Policy struct {
	tiers []Tier
}

// NewPolicy validates tiers and orders them from the largest threshold to
// the smallest.  An empty tier list yields a policy that never fires.
func NewPolicy(tiers ...Tier) (*Policy, error) {
	out := make([]Tier, 0, len(tiers))
	names := make(map[string]bool, len(tiers))
	thresholds := make(map[time.Duration]bool, len(tiers))
	for _, t := range tiers {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" || t.Before <= 0 {
			return nil, fmt.Errorf("%w: %q (%s)", ErrInvalidTier, t.Name, t.Before)
		}
		if names[t.Name] || thresholds[t.Before] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTier, t.Name)
		}
		names[t.Name] = true
		thresholds[t.Before] = true
		if t.Priority == "" {
			t.Priority = "medium"
		}
		if t.TemplateID == "" {
			t.TemplateID = "deadline_" + t.Name
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before > out[j].Before })
	return &Policy{tiers: out}, nil
}

// MustPolicy is NewPolicy for static tier lists; it panics on error.
func MustPolicy(tiers ...Tier) *Policy {
	p, err := NewPolicy(tiers...)
	if err != nil {
		panic(err)
	}
	return p
}

// Tiers returns a copy of the ordered tiers.
func (p *Policy) Tiers() []Tier {
	return append([]Tier(nil), p.tiers...)
}

// NextTier returns the most urgent tier that has not been sent and whose
// threshold has been crossed (now >= deadline - Before).  Nothing is due
// once now is past the deadline; expiry is not a reminder.
func (p *Policy) NextTier(deadline, now time.Time, sent []string) (Tier, bool) {
	if p == nil || now.After(deadline) {
		return Tier{}, false
	}
	done := make(map[string]bool, len(sent))
	for _, s := range sent {
		done[s] = true
	}
	remaining := deadline.Sub(now)
	for i := len(p.tiers) - 1; i >= 0; i-- {
		t := p.tiers[i]
		if remaining > t.Before || done[t.Name] {
			continue
		}
		return t, true
	}
	return Tier{}, false
}

// Covered returns the names of t and every less urgent tier.  Once t has
// fired those tiers are stale and must not fire later in the epoch.
func (p *Policy) Covered(t Tier) []string {
	var out []string
	for _, pt := range p.tiers {
		if pt.Before >= t.Before {
			out = append(out, pt.Name)
		}
	}
	return out
}

// ParseTiers parses a comma separated list of durations such as
// "24h,6h,1h" into tiers named after each duration.  Priority is "high"
// for thresholds of six hours or less and "medium" otherwise.
func ParseTiers(s string) ([]Tier, error) {
	var out []Tier
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTier, part, err)
		}
		prio := "medium"
		if d <= 6*time.Hour {
			prio = "high"
		}
		out = append(out, Tier{Name: TierName(d), Before: d, Priority: prio})
	}
	return out, nil
}

// TierName renders d the way tier names are stored: whole hours as "6h",
// anything else in time.Duration notation.
func TierName(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	}
	return d.String()
}
