package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screendoc/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ledgerDoc(id string, n int) types.LedgerDocument {
	doc := types.LedgerDocument{
		SessionID: id,
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	for i := 1; i <= n; i++ {
		doc.Steps = append(doc.Steps, types.Step{
			Seq:        i,
			Action:     "ACTION",
			Motivation: "motivation",
			UIElements: []string{"button"},
			Timestamp:  doc.CreatedAt.Add(time.Duration(i) * 10 * time.Second),
			Confidence: 0.9,
		})
	}
	return doc
}

func TestSaveAndLoadLedger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := ledgerDoc("sess-a", 3)
	require.NoError(t, s.SaveLedger(ctx, doc))

	got, err := s.LoadLedger(ctx, "sess-a")
	require.NoError(t, err)
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("ledger round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestIdempotentFlush(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := ledgerDoc("sess-a", 2)
	require.NoError(t, s.SaveLedger(ctx, doc))
	require.NoError(t, s.SaveLedger(ctx, doc))
	require.NoError(t, s.SaveLedger(ctx, doc))

	got, err := s.LoadLedger(ctx, "sess-a")
	require.NoError(t, err)
	assert.Len(t, got.Steps, 2, "re-flushing the same state changes nothing")

	ids, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-a"}, ids)
}

func TestSaveOverwritesPreviousVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLedger(ctx, ledgerDoc("sess-a", 1)))
	require.NoError(t, s.SaveLedger(ctx, ledgerDoc("sess-a", 5)))

	got, err := s.LoadLedger(ctx, "sess-a")
	require.NoError(t, err)
	assert.Len(t, got.Steps, 5)
}

func TestLoadMissingDocument(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadLedger(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestEnhancementDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := types.EnhancementDocument{
		SessionID:  "sess-a",
		EnhancedAt: time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC),
		Result: types.EnhancementResult{
			Complete:     true,
			ClarityScore: 0.85,
			WorkflowType: "data entry",
			Issues:       []string{},
			Suggestions:  []string{},
			Round:        2,
		},
		Context: []types.QA{{Question: "q", Answer: "a"}},
	}
	require.NoError(t, s.SaveEnhancement(ctx, doc))

	got, err := s.LoadEnhancement(ctx, "sess-a")
	require.NoError(t, err)
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("enhancement round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLedgerAndEnhancementAreSeparateKinds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLedger(ctx, ledgerDoc("sess-a", 1)))
	_, err := s.LoadEnhancement(ctx, "sess-a")
	assert.ErrorIs(t, err, ErrNoDocument, "the ledger write does not create an enhancement doc")
}

func TestListSessionsOnlyCountsLedgers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLedger(ctx, ledgerDoc("sess-a", 1)))
	require.NoError(t, s.SaveLedger(ctx, ledgerDoc("sess-b", 1)))
	require.NoError(t, s.SaveEnhancement(ctx, types.EnhancementDocument{SessionID: "sess-a"}))

	ids, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.ElementsMatch(t, []string{"sess-a", "sess-b"}, ids)
}
