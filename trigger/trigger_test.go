package trigger_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/trigger"
)

func TestAlwaysFires(t *testing.T) {
	bb := blackboard.New("p", nil)
	require.True(t, trigger.Always()(bb))
}

func TestAfterFiresOnlyPostWrite(t *testing.T) {
	bb := blackboard.New("p", nil)
	pred := trigger.After("parallel_query")
	require.False(t, pred(bb))

	bb.Write("perspectives", "x", "a", "parallel_query", nil)
	require.True(t, pred(bb))
}

func TestAfterAllRequiresEveryStage(t *testing.T) {
	bb := blackboard.New("p", nil)
	pred := trigger.AfterAll("s1", "s2")

	bb.Write("t1", "x", "a", "s1", nil)
	require.False(t, pred(bb))

	bb.Write("t2", "x", "a", "s2", nil)
	require.True(t, pred(bb))
}

func TestAfterAnyRequiresOneStage(t *testing.T) {
	bb := blackboard.New("p", nil)
	pred := trigger.AfterAny("s1", "s2")
	require.False(t, pred(bb))

	bb.Write("t2", "x", "a", "s2", nil)
	require.True(t, pred(bb))
}

func TestOnConflictFiresWhenDivergent(t *testing.T) {
	bb := blackboard.New("p", nil)
	pred := trigger.OnConflict("constraints")
	require.False(t, pred(bb))

	bb.Write("constraints", "a", "cfo", "round1", nil)
	bb.Write("constraints", "b", "coo", "round1", nil)
	require.True(t, pred(bb))
}
