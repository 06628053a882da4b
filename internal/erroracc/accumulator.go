// Package erroracc implements the two-channel error accumulator described
// in spec.md §4.3: every reported error is tagged CLIENT_VISIBLE or
// AD_SERVER_VISIBLE, deduplicated per (visibility, code, message), and
// drained as a single comma-joined string per channel.
//
// This is the "two-channel error accumulator → tagged variant + collector"
// redesign from spec.md §9: each report is a flat struct appended to a
// slice, with dedup against a hash set keyed by xxhash (the hashing
// primitive the retrieved mediation-platform repos pull in transitively
// through redis/go-redis/v9) rather than a nested map-of-maps.
package erroracc

import (
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/adxcore/sfe/internal/errortypes"
)

// Visibility names the channel an error surfaces on.
type Visibility int

const (
	ClientVisible Visibility = iota
	AdServerVisible
)

// Entry is one reported error.
type Entry struct {
	Visibility Visibility
	Code       int
	Message    string
}

// Accumulator collects errors from synchronous validation stages. Per
// spec.md §5 it is read-only from the moment fan-out begins; callers own
// enforcing that by simply not calling Report after that point.
type Accumulator struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[uint64]struct{}
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{seen: make(map[uint64]struct{})}
}

func dedupKey(v Visibility, code int, msg string) uint64 {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(v)))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(code))
	b.WriteByte('|')
	b.WriteString(msg)
	return xxhash.Sum64String(b.String())
}

// Report records msg under the given visibility/code. Duplicate
// (visibility, code, message) triples are silently absorbed.
func (a *Accumulator) Report(v Visibility, code int, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := dedupKey(v, code, msg)
	if _, ok := a.seen[key]; ok {
		return
	}
	a.seen[key] = struct{}{}
	a.entries = append(a.entries, Entry{Visibility: v, Code: code, Message: msg})
}

// HasErrors reports whether any error has been recorded on any channel.
func (a *Accumulator) HasErrors() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries) > 0
}

// HasVisible reports whether any error has been recorded on the given
// channel.
func (a *Accumulator) HasVisible(v Visibility) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		if e.Visibility == v {
			return true
		}
	}
	return false
}

// Drain returns every message recorded on the given channel, comma-joined,
// in report order.
func (a *Accumulator) Drain(v Visibility) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		if e.Visibility == v {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, ", ")
}

// ClientSideCode is the error code the encrypted envelope uses for any
// CLIENT_VISIBLE error, per spec.md §4.3.
const ClientSideCode = errortypes.BadInputCode
