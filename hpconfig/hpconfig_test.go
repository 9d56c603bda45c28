package hpconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/hpconfig"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hp.cfg")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"static": {"id": "node-a", "log": {"level": "debug"}},
		"patch": {"bin_path": "/bin/contract", "consensus": {"roundtime": 2000, "stage_slice": 20, "threshold": 67}}
	}`), 0o644))

	cfg, err := hpconfig.Load(path)
	require.NoError(t, err)
	require.Equal(t, "node-a", cfg.Static.ID)
	require.Equal(t, "/bin/contract", cfg.Patch.BinPath)
	require.Equal(t, 2000, cfg.Patch.Consensus.RoundTime)
	require.Equal(t, 67, cfg.Patch.Consensus.Threshold)
}

func TestValidateRejectsOutOfBoundsRoundTime(t *testing.T) {
	p := hpconfig.Default().Patch
	p.Consensus.RoundTime = 0
	require.Error(t, hpconfig.Validate(p))
}

func TestValidateRejectsOutOfBoundsThreshold(t *testing.T) {
	p := hpconfig.Default().Patch
	p.Consensus.Threshold = 101
	require.Error(t, hpconfig.Validate(p))
}

func TestLiveSwapPatchLeavesStaticUntouched(t *testing.T) {
	base := hpconfig.Default()
	base.Static.ID = "node-a"
	live := hpconfig.NewLive(base)

	newPatch := base.Patch
	newPatch.BinPath = "/bin/new-contract"
	live.SwapPatch(newPatch)

	cur := live.Current()
	require.Equal(t, "node-a", cur.Static.ID)
	require.Equal(t, "/bin/new-contract", cur.Patch.BinPath)
}

func TestLoadPatchFromVfsBody(t *testing.T) {
	p, err := hpconfig.LoadPatch([]byte(`{"bin_path": "/bin/c", "consensus": {"mode":"public","roundtime":1000,"stage_slice":25,"threshold":80}}`))
	require.NoError(t, err)
	require.Equal(t, "/bin/c", p.BinPath)
}
