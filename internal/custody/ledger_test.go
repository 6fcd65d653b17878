package custody

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/casefile/internal/apperr"
	"github.com/starford/casefile/internal/models"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Minute)
	}
}

type recordingSink struct {
	entries []models.CustodyEntry
	err     error
}

func (s *recordingSink) AppendCustody(e models.CustodyEntry) error {
	s.entries = append(s.entries, e)
	return s.err
}

func actions(entries []models.CustodyEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func TestAppend_EmptyEvidenceID(t *testing.T) {
	l := New()
	_, err := l.Append("", "evidence_selected", "analyst", "lab")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = l.Append("   ", "evidence_selected", "analyst", "lab")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Equal(t, 0, l.Len())
}

func TestEntriesFor_PreservesAppendOrder(t *testing.T) {
	l := New(WithClock(fixedClock()))
	const n = 10
	for i := 0; i < n; i++ {
		_, err := l.Append("E1", fmt.Sprintf("action-%d", i), "analyst", "lab")
		require.NoError(t, err)
		_, err = l.Append("E2", "other", "analyst", "lab")
		require.NoError(t, err)
	}

	got := l.EntriesFor("E1")
	require.Len(t, got, n)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("action-%d", i), e.Action)
		assert.Equal(t, "E1", e.EvidenceID)
	}
	assert.Len(t, l.EntriesFor("E2"), n)
	assert.Empty(t, l.EntriesFor("E3"))
}

func TestAppend_DoesNotAlterPriorEntries(t *testing.T) {
	l := New(WithClock(fixedClock()))
	first, err := l.Append("E1", "evidence_selected", "analyst", "lab")
	require.NoError(t, err)

	snapshot := l.EntriesFor("E1")
	_, err = l.Append("E1", "image_mounted", "analyst", "lab")
	require.NoError(t, err)

	// Mutating a returned copy must not leak into the ledger.
	snapshot[0].Action = "forged"

	after := l.EntriesFor("E1")
	assert.Equal(t, first, after[0])
	if diff := cmp.Diff([]string{"evidence_selected", "image_mounted"}, actions(after)); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	l := New(WithClock(fixedClock()))
	for _, a := range []string{"evidence_selected", "image_mounted", "analysis_recorded"} {
		_, err := l.Append("E1", a, "analyst", "lab")
		require.NoError(t, err)
	}
	require.NoError(t, l.VerifyChain())

	entries := l.All()
	entries[1].User = "mallory"
	err := VerifyChain(entries)
	require.ErrorIs(t, err, apperr.ErrIntegrityFailure)
	assert.Contains(t, err.Error(), "entry 2")
}

func TestAppend_ChainsHashes(t *testing.T) {
	l := New(WithClock(fixedClock()))
	a, _ := l.Append("E1", "one", "u", "l")
	b, _ := l.Append("E2", "two", "u", "l")
	assert.Empty(t, a.PrevHash)
	assert.Equal(t, a.Hash, b.PrevHash)
	assert.Equal(t, 1, a.Sequence)
	assert.Equal(t, 2, b.Sequence)
}

func TestAppend_SinkFailureDoesNotFail(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	l := New(WithSink(sink), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, err := l.Append("E1", "evidence_selected", "analyst", "lab")
	require.NoError(t, err)
	assert.Len(t, sink.entries, 1)
	assert.Equal(t, 1, l.Len())
}

func TestNewestFirst_LeavesLedgerOrder(t *testing.T) {
	l := New(WithClock(fixedClock()))
	_, _ = l.Append("E1", "first", "u", "l")
	_, _ = l.Append("E1", "second", "u", "l")

	display := NewestFirst(l.EntriesFor("E1"))
	if diff := cmp.Diff([]string{"second", "first"}, actions(display)); diff != "" {
		t.Errorf("display order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"first", "second"}, actions(l.EntriesFor("E1"))); diff != "" {
		t.Errorf("ledger order changed (-want +got):\n%s", diff)
	}
}
