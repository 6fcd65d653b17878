// Package custody implements the chain-of-custody ledger: an append-only,
// hash-chained log of every action taken on a piece of evidence.
package custody

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/casefile/internal/apperr"
	"github.com/starford/casefile/internal/models"
)

// Sink mirrors appended entries somewhere outside the session (the SQLite
// audit mirror). Sink errors are logged and never fail an append.
type Sink interface {
	AppendCustody(entry models.CustodyEntry) error
}

// Ledger is the append-only custody log for one investigation session.
type Ledger struct {
	mu      sync.RWMutex
	entries []models.CustodyEntry
	byID    map[string][]int // evidence id -> positions in entries

	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithSink mirrors every appended entry to s.
func WithSink(s Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		byID:   make(map[string][]int),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records an action on evidenceID. It only fails when evidenceID is
// empty.
func (l *Ledger) Append(evidenceID, action, user, location string) (models.CustodyEntry, error) {
	if strings.TrimSpace(evidenceID) == "" {
		return models.CustodyEntry{}, fmt.Errorf("custody: empty evidence id: %w", apperr.ErrInvalidArgument)
	}

	l.mu.Lock()
	prev := ""
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].Hash
	}
	e := models.CustodyEntry{
		ID:         uuid.NewString(),
		Sequence:   len(l.entries) + 1,
		Timestamp:  l.now().UTC(),
		EvidenceID: evidenceID,
		Action:     action,
		User:       user,
		Location:   location,
		PrevHash:   prev,
	}
	e.Hash = entryHash(e)
	l.entries = append(l.entries, e)
	l.byID[evidenceID] = append(l.byID[evidenceID], len(l.entries)-1)
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.AppendCustody(e); err != nil {
			l.logger.Warn("custody: mirror append failed",
				slog.String("evidence_id", evidenceID),
				slog.Int("sequence", e.Sequence),
				slog.String("error", err.Error()))
		}
	}
	return e, nil
}

// EntriesFor returns every entry for evidenceID in append order.
func (l *Ledger) EntriesFor(evidenceID string) []models.CustodyEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos := l.byID[evidenceID]
	out := make([]models.CustodyEntry, len(pos))
	for i, p := range pos {
		out[i] = l.entries[p]
	}
	return out
}

// All returns every entry in append order.
func (l *Ledger) All() []models.CustodyEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// VerifyChain re-derives every entry hash and reports the first break.
func (l *Ledger) VerifyChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return VerifyChain(l.entries)
}

// VerifyChain checks that entries form an unbroken hash chain.
func VerifyChain(entries []models.CustodyEntry) error {
	prev := ""
	for i, e := range entries {
		if e.Sequence != i+1 {
			return fmt.Errorf("custody: entry %d has sequence %d: %w", i+1, e.Sequence, apperr.ErrIntegrityFailure)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("custody: entry %d prev hash mismatch: %w", e.Sequence, apperr.ErrIntegrityFailure)
		}
		if entryHash(e) != e.Hash {
			return fmt.Errorf("custody: entry %d hash mismatch: %w", e.Sequence, apperr.ErrIntegrityFailure)
		}
		prev = e.Hash
	}
	return nil
}

// NewestFirst returns a reverse-chronological copy for display. The ledger
// itself is never reordered.
func NewestFirst(entries []models.CustodyEntry) []models.CustodyEntry {
	out := slices.Clone(entries)
	slices.Reverse(out)
	return out
}

func entryHash(e models.CustodyEntry) string {
	h := sha256.New()
	for _, part := range []string{
		e.PrevHash,
		strconv.Itoa(e.Sequence),
		e.Timestamp.Format(time.RFC3339Nano),
		e.EvidenceID,
		e.Action,
		e.User,
		e.Location,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
