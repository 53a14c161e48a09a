package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Mirror = false
	cfg.DecisionTimeout = 50 * time.Millisecond
	cfg.DecisionTickEvery = 5 * time.Millisecond
	cfg.AbortGraceMS = 20 * time.Millisecond
	return cfg
}

func TestRun_NormalExitCapturesToolEventsAndTails(t *testing.T) {
	script := `echo '@@MEM_TOOL_EVENT@@{"v":1,"type":"tool.request","id":"1","tool":"fs.read"}'
echo '@@MEM_TOOL_EVENT@@{"v":1,"type":"tool.result","id":"1","ok":true}'
echo "plain stdout line"
exit 0`
	s := New(fastConfig())
	result, err := s.Run(context.Background(), Spec{Program: "sh", Args: []string{"-c", script}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Len(t, result.ToolEvents, 2)
	assert.Contains(t, string(result.StdoutTail), "plain stdout line")
	assert.False(t, result.Aborted)
}

func TestRun_NonZeroExitCodePropagated(t *testing.T) {
	s := New(fastConfig())
	result, err := s.Run(context.Background(), Spec{Program: "sh", Args: []string{"-c", "exit 7"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
}

func TestRun_SignalledChildNormalizesTo128PlusSignal(t *testing.T) {
	s := New(fastConfig())
	result, err := s.Run(context.Background(), Spec{Program: "sh", Args: []string{"-c", "kill -TERM $$"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 128+15, result.ExitCode)
}

func TestRun_SpawnFailureReturnsError(t *testing.T) {
	s := New(fastConfig())
	_, err := s.Run(context.Background(), Spec{Program: "/no/such/binary-xyz"}, nil)
	assert.Error(t, err)
}

func TestRun_DecisionTimeoutTriggersAbortExitCode(t *testing.T) {
	script := `echo '@@MEM_TOOL_EVENT@@{"v":1,"type":"tool.request","id":"1","tool":"fs.read"}'
sleep 2`
	s := New(fastConfig())
	start := time.Now()
	result, err := s.Run(context.Background(), Spec{Program: "sh", Args: []string{"-c", script}}, nil)
	require.NoError(t, err)
	assert.True(t, result.Aborted)
	assert.Equal(t, AbortExitCode, result.ExitCode)
	assert.Equal(t, "decision_timeout", result.AbortReason)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRun_ContextCancellationAborts(t *testing.T) {
	s := New(fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	result, err := s.Run(ctx, Spec{Program: "sh", Args: []string{"-c", "sleep 2"}}, nil)
	require.NoError(t, err)
	assert.True(t, result.Aborted)
	assert.Equal(t, AbortExitCode, result.ExitCode)
}
