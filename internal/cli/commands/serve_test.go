package commands

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlshape/internal/cli/config"
	"github.com/leapstack-labs/sqlshape/internal/cli/output"
	"github.com/leapstack-labs/sqlshape/internal/cli/testutil"
	logutil "github.com/leapstack-labs/sqlshape/internal/testutil"
)

func TestServeCommand_WatchNeedsInput(t *testing.T) {
	cfg := testutil.TestConfig(t.TempDir(), output.ModeText)
	cfg.Server.Watch = true

	res := testutil.RunCommand(t, NewServeCommand(), cfg)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "--watch needs a corpus file")
}

func TestServeCommand_RunsUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	input := logutil.WriteCorpus(t, dir, "corpus.json", logutil.SampleCorpus)
	cfg := testutil.TestConfig(dir, output.ModeText)
	cfg.Server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(config.WithConfig(context.Background(), cfg))
	ctx = context.WithValue(ctx, config.LoggerKey(), logutil.NewTestLogger(t))
	defer cancel()

	cmd := NewServeCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{input})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
	assert.Contains(t, out.String(), "Starting API server on 127.0.0.1:0")
	assert.Contains(t, out.String(), "serving analysis of "+input)
}

func TestServeCommand_BadInput(t *testing.T) {
	dir := t.TempDir()
	cfg := testutil.TestConfig(dir, output.ModeText)
	cfg.Server.Addr = "127.0.0.1:0"
	bad := logutil.WriteCorpus(t, dir, "bad.json", `not json`)

	res := testutil.RunCommand(t, NewServeCommand(), cfg, bad)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "failed to load analysis")
}
