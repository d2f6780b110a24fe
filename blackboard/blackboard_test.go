package blackboard_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/blackboard"
)

func TestWriteMonotonicVersions(t *testing.T) {
	bb := blackboard.New("p-test", nil)

	for i := 1; i <= 5; i++ {
		entry := bb.Write("perspectives", "x", "agent-a", "stage1", nil)
		require.Equal(t, i, entry.Version)
	}

	entries := bb.Read("perspectives", nil)
	require.Len(t, entries, 5)
	for i, e := range entries {
		require.Equal(t, i+1, e.Version)
	}
}

func TestScopeFilterSoundness(t *testing.T) {
	bb := blackboard.New("p-test", nil)
	bb.Write("rounds", "financial take", "cfo", "round1", map[string]any{"scope": "financial"})
	bb.Write("rounds", "market take", "cmo", "round1", map[string]any{"scope": "market"})
	bb.Write("rounds", "everyone sees this", "system", "round1", map[string]any{"scope": "all"})

	reader := &blackboard.Reader{Name: "cfo", Scopes: []string{"financial"}}
	entries := bb.Read("rounds", reader)

	require.Len(t, entries, 2)
	for _, e := range entries {
		require.NotEqual(t, "market take", e.Content)
	}
}

func TestUnscopedReaderSeesEverything(t *testing.T) {
	bb := blackboard.New("p-test", nil)
	bb.Write("rounds", "a", "cfo", "round1", map[string]any{"scope": "financial"})
	bb.Write("rounds", "b", "cmo", "round1", map[string]any{"scope": "market"})

	entries := bb.Read("rounds", &blackboard.Reader{Name: "observer"})
	require.Len(t, entries, 2)
}

func TestAppendOnlySnapshotIsPrefix(t *testing.T) {
	bb := blackboard.New("p-test", nil)
	bb.Write("question", "should we?", "system", "init", nil)

	snap1 := bb.Snapshot()
	bb.Write("perspectives", "yes", "agent-a", "stage1", nil)
	snap2 := bb.Snapshot()

	require.Len(t, snap1.Entries, 1)
	require.Len(t, snap2.Entries, 2)
	require.Equal(t, snap1.Entries[0].ID, snap2.Entries[0].ID)
}

func TestConflictsDetectsDivergentAuthors(t *testing.T) {
	bb := blackboard.New("p-test", nil)
	bb.Write("constraints", "budget < 1M", "cfo", "round1", nil)
	bb.Write("constraints", "budget < 2M", "coo", "round1", nil)

	pairs := bb.Conflicts("constraints")
	require.Len(t, pairs, 1)
}

func TestConflictsNilWhenNoneQualify(t *testing.T) {
	bb := blackboard.New("p-test", nil)
	bb.Write("constraints", "budget < 1M", "cfo", "round1", nil)

	require.Nil(t, bb.Conflicts("constraints"))
}

func TestWatcherFailureIsolated(t *testing.T) {
	bb := blackboard.New("p-test", nil)

	var secondFired bool
	bb.OnWrite(func(blackboard.Entry) { panic("boom") })
	bb.OnWrite(func(blackboard.Entry) { secondFired = true })

	require.NotPanics(t, func() {
		bb.Write("question", "x", "system", "init", nil)
	})
	require.True(t, secondFired)
}

func TestResourceSignalsAggregatesTokenUsage(t *testing.T) {
	bb := blackboard.New("p-test", nil)
	bb.Write("perspectives", "a", "agent-a", "stage1", map[string]any{
		"token_usage": map[string]int{"input_tokens": 100, "output_tokens": 50},
	})
	bb.Write("perspectives", "b", "agent-b", "stage1", map[string]any{
		"token_usage": map[string]int{"input_tokens": 200, "output_tokens": 75},
	})

	sig := bb.ResourceSignals()
	require.Equal(t, 300, sig.TotalInputTokens)
	require.Equal(t, 125, sig.TotalOutputTokens)
	require.Equal(t, 2, sig.EntryCount)
}
