package stage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/stage"
)

func TestFormatSubstitutesKnownKeys(t *testing.T) {
	out := stage.Format("Q: {question}", map[string]string{"question": "why?"}, "fallback")
	require.Equal(t, "Q: why?", out)
}

func TestFormatFallsBackForUnknownKeys(t *testing.T) {
	out := stage.Format("{question} / {mystery}", map[string]string{"question": "x"}, "fb")
	require.Equal(t, "x / fb", out)
}
