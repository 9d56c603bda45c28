package execfence_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/execfence"
	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/vfs/memvfs"
)

func baseConfig(t *testing.T) execfence.Config {
	t.Helper()
	return execfence.Config{
		Mount:   memvfs.New(),
		BinArgs: nil,
		Env:     os.Environ(),
		UID:     uint32(os.Getuid()),
		GID:     uint32(os.Getgid()),
		Limits: execfence.ResourceLimits{
			CPUSeconds: 5,
			MemBytes:   512 * 1024 * 1024,
			OFDCount:   64,
		},
		ExecTimeout: 2 * time.Second,
	}
}

func TestRunCleanExitProducesResult(t *testing.T) {
	cfg := baseConfig(t)
	cfg.BinPath = "/bin/echo"
	cfg.BinArgs = []string{"ok"}
	f := execfence.New(cfg)

	result, ok, err := f.Run(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, hash.Zero, result.OutputHash)
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	cfg := baseConfig(t)
	cfg.BinPath = "/bin/sleep"
	cfg.BinArgs = []string{"10"}
	cfg.ExecTimeout = 200 * time.Millisecond
	f := execfence.New(cfg)

	_, ok, err := f.Run(context.Background(), nil)
	require.Error(t, err)
	require.False(t, ok)
}

func TestHashOutputsOrderIndependent(t *testing.T) {
	a := hash.Sum([]byte("a"))
	b := hash.Sum([]byte("b"))
	outputs := map[hash.H32][]byte{a: []byte("a"), b: []byte("b")}
	h1 := execfence.HashOutputs(outputs)
	h2 := execfence.HashOutputs(outputs) // map iteration order varies per-run
	require.Equal(t, h1, h2)
}
