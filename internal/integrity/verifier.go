// Package integrity recomputes evidence payload hashes and compares them to
// the hashes recorded at acquisition. Every ambiguity resolves to "not
// verified".
package integrity

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/casefile/internal/apperr"
	"github.com/starford/casefile/internal/models"
)

// Verification outcomes reported in Result.Reason.
const (
	ReasonVerified       = "verified"
	ReasonNotFound       = "not found"
	ReasonHashFailed     = "hash calculation failed"
	ReasonHashMismatch   = "hash mismatch"
	ReasonNoRecordedHash = "no recorded hash"
	DefaultTimeout       = 5 * time.Second
	DefaultConcurrency   = 4
)

// Hasher is the external hashing capability. It returns a hex digest.
type Hasher interface {
	HashPayload(ctx context.Context, data []byte) (string, error)
}

// PayloadSource returns the raw bytes of an evidence payload.
type PayloadSource interface {
	Read(path string) ([]byte, error)
}

// RecordSource looks up evidence records.
type RecordSource interface {
	Get(id string) (models.EvidenceRecord, error)
}

// Result is the outcome of one verification.
type Result struct {
	EvidenceID   string    `json:"evidence_id"`
	Valid        bool      `json:"valid"`
	OriginalHash string    `json:"original_hash"`
	CurrentHash  string    `json:"current_hash"`
	Reason       string    `json:"reason"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Err returns nil for a valid result and an error wrapping
// apperr.ErrIntegrityFailure otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("evidence %s: %s: %w", r.EvidenceID, r.Reason, apperr.ErrIntegrityFailure)
}

// Verifier checks evidence payloads against their recorded SHA-256 hash.
// It never mutates state and is safe for concurrent use.
type Verifier struct {
	records     RecordSource
	payloads    PayloadSource
	hasher      Hasher
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTimeout bounds each hash computation. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithConcurrency bounds VerifyAll fan-out. Non-positive values are ignored.
func WithConcurrency(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// New creates a Verifier.
func New(records RecordSource, payloads PayloadSource, hasher Hasher, opts ...Option) *Verifier {
	v := &Verifier{
		records:     records,
		payloads:    payloads,
		hasher:      hasher,
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify recomputes the payload hash of evidenceID and compares it to the
// recorded SHA-256.
func (v *Verifier) Verify(ctx context.Context, evidenceID string) Result {
	res := Result{EvidenceID: evidenceID, CheckedAt: v.now()}

	rec, err := v.records.Get(evidenceID)
	if err != nil {
		res.Reason = ReasonNotFound
		return res
	}
	res.OriginalHash = rec.HashSHA256
	if strings.TrimSpace(rec.HashSHA256) == "" {
		res.Reason = ReasonNoRecordedHash
		return res
	}

	current, err := v.compute(ctx, rec.Payload())
	if err != nil {
		v.logger.Warn("integrity: hash calculation failed",
			slog.String("evidence_id", evidenceID),
			slog.String("error", err.Error()))
		res.Reason = ReasonHashFailed
		return res
	}
	res.CurrentHash = current

	want, errWant := hex.DecodeString(strings.TrimSpace(rec.HashSHA256))
	got, errGot := hex.DecodeString(strings.TrimSpace(current))
	switch {
	case errGot != nil:
		res.Reason = ReasonHashFailed
	case errWant != nil || !bytes.Equal(want, got):
		res.Reason = ReasonHashMismatch
	default:
		res.Valid = true
		res.Reason = ReasonVerified
	}
	return res
}

// VerifyAll verifies ids concurrently. Results keep the order of ids.
func (v *Verifier) VerifyAll(ctx context.Context, ids []string) []Result {
	out := make([]Result, len(ids))
	var g errgroup.Group
	g.SetLimit(v.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = v.Verify(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// compute reads and hashes the payload, giving up after the timeout even if
// the hasher ignores its context.
func (v *Verifier) compute(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	type outcome struct {
		hash string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := v.payloads.Read(path)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		h, err := v.hasher.HashPayload(ctx, data)
		done <- outcome{hash: h, err: err}
	}()

	select {
	case o := <-done:
		return o.hash, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
