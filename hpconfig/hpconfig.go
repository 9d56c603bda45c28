// Package hpconfig loads and serves the node's configuration: an
// immutable base loaded once from `hp.cfg`, and a patch-mutable subset
// that Live.SwapPatch replaces atomically and LoadPatch parses from a
// `patch.cfg` body. No code in this module calls SwapPatch, so the patch
// subset loaded at startup stays in force for the process lifetime.
package hpconfig

import (
	"encoding/json"
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/hotpocket/hpcore/hperrors"
)

// ConsensusConfig is the consensus.{mode,roundtime,stage_slice,threshold}
// config surface. Bounds: roundtime in [1,3_600_000]ms, stage_slice in
// [1,33]%, threshold in [1,100]%.
type ConsensusConfig struct {
	Mode       string `json:"mode" mapstructure:"mode"`
	RoundTime  int    `json:"roundtime" mapstructure:"roundtime"`
	StageSlice int    `json:"stage_slice" mapstructure:"stage_slice"`
	Threshold  int    `json:"threshold" mapstructure:"threshold"`
}

// RoundLimits is the round_limits.* config surface, fed directly into
// execfence.ResourceLimits.
type RoundLimits struct {
	UserInputBytes  int64 `json:"user_input_bytes" mapstructure:"user_input_bytes"`
	UserOutputBytes int64 `json:"user_output_bytes" mapstructure:"user_output_bytes"`
	NPLOutputBytes  int64 `json:"npl_output_bytes" mapstructure:"npl_output_bytes"`
	ProcCPUSeconds  int   `json:"proc_cpu_seconds" mapstructure:"proc_cpu_seconds"`
	ProcMemBytes    int64 `json:"proc_mem_bytes" mapstructure:"proc_mem_bytes"`
	ProcOFDCount    int   `json:"proc_ofd_count" mapstructure:"proc_ofd_count"`
	ExecTimeoutMs   int   `json:"exec_timeout" mapstructure:"exec_timeout"`
}

// NPLConfig is the npl.mode config surface.
type NPLConfig struct {
	Mode string `json:"mode" mapstructure:"mode"`
}

// Patch is the consensus-mutable subset of the config surface, parsed
// from patch.cfg and swapped in atomically by Live.SwapPatch.
type Patch struct {
	ContractVersion      string          `json:"version" mapstructure:"version"`
	UNL                  []string        `json:"unl" mapstructure:"unl"`
	BinPath              string          `json:"bin_path" mapstructure:"bin_path"`
	BinArgs              []string        `json:"bin_args" mapstructure:"bin_args"`
	Environment          []string        `json:"environment" mapstructure:"environment"`
	MaxInputLedgerOffset uint64          `json:"max_input_ledger_offset" mapstructure:"max_input_ledger_offset"`
	Consensus            ConsensusConfig `json:"consensus" mapstructure:"consensus"`
	NPL                  NPLConfig       `json:"npl" mapstructure:"npl"`
	RoundLimits          RoundLimits     `json:"round_limits" mapstructure:"round_limits"`
}

// Static is the non-patch-mutable config surface, fixed for the process
// lifetime.
type Static struct {
	ID      string `json:"id" mapstructure:"id"`
	Execute bool   `json:"execute" mapstructure:"execute"`
	RunAs   string `json:"run_as" mapstructure:"run_as"`
	Log     struct {
		Level string `json:"level" mapstructure:"level"`
	} `json:"log" mapstructure:"log"`
}

// Config is the full, live node configuration: Static never changes after
// load; Patch is swapped in wholesale under Live.Current/Live.SwapPatch.
type Config struct {
	Static Static
	Patch  Patch
}

// Default returns the zero-config defaults.
func Default() Config {
	return Config{
		Patch: Patch{
			Consensus: ConsensusConfig{
				Mode:       "public",
				RoundTime:  1000,
				StageSlice: 25,
				Threshold:  80,
			},
			NPL: NPLConfig{Mode: "public"},
			RoundLimits: RoundLimits{
				UserInputBytes:  1024 * 1024,
				UserOutputBytes: 1024 * 1024,
				NPLOutputBytes:  1024 * 1024,
				ProcCPUSeconds:  10,
				ProcMemBytes:    512 * 1024 * 1024,
				ProcOFDCount:    256,
				ExecTimeoutMs:   5000,
			},
		},
	}
}

// Load reads hp.cfg at path over the defaults, the way the
// configuration loaders unmarshal a viper-backed file over New*() values.
func Load(path string) (Config, error) {
	cfg := Default()

	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("json")
	if err := vp.ReadInConfig(); err != nil {
		return Config{}, hperrors.Fatal("config_read_failed", err)
	}
	if err := vp.Unmarshal(&cfg); err != nil {
		return Config{}, hperrors.Fatal("config_unmarshal_failed", err)
	}
	if err := Validate(cfg.Patch); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadPatch reads just the patch.cfg JSON body (vfs-resident, so it is
// fed in as bytes rather than a path).
func LoadPatch(body []byte) (Patch, error) {
	var p Patch
	if err := json.Unmarshal(body, &p); err != nil {
		return Patch{}, hperrors.Fatal("patch_unmarshal_failed", err)
	}
	if err := Validate(p); err != nil {
		return Patch{}, err
	}
	return p, nil
}

// Validate enforces the config bounds: roundtime in [1,3_600_000]ms,
// stage_slice in [1,33]%, threshold in [1,100]%.
func Validate(p Patch) error {
	c := p.Consensus
	if c.RoundTime < 1 || c.RoundTime > 3_600_000 {
		return hperrors.Fatal("config_bad_roundtime", nil)
	}
	if c.StageSlice < 1 || c.StageSlice > 33 {
		return hperrors.Fatal("config_bad_stage_slice", nil)
	}
	if c.Threshold < 1 || c.Threshold > 100 {
		return hperrors.Fatal("config_bad_threshold", nil)
	}
	return nil
}

// Live holds the atomically-swappable current Config, read by every
// component that needs live config and updated only by the patch reload
// path, so concurrent readers never observe a torn config.
type Live struct {
	ptr atomic.Value // holds Config
}

// NewLive wraps an initial Config for atomic access.
func NewLive(initial Config) *Live {
	l := &Live{}
	l.ptr.Store(initial)
	return l
}

// Current returns the presently-live Config.
func (l *Live) Current() Config {
	return l.ptr.Load().(Config)
}

// SwapPatch atomically replaces the live Patch, leaving Static untouched.
func (l *Live) SwapPatch(p Patch) {
	cur := l.Current()
	cur.Patch = p
	l.ptr.Store(cur)
}
