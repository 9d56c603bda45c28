// Package execfence implements the execution fence: acquiring the
// vfs RW session, materializing admitted inputs, spawning the deterministic
// contract process under resource limits, and collecting its outputs.
package execfence

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hperrors"
	"github.com/hotpocket/hpcore/vfs"
)

// ResourceLimits enforces the OS-level caps via `ulimit`, applied inside
// the spawned shell before the contract binary execs.
type ResourceLimits struct {
	CPUSeconds int
	MemBytes   int64
	OFDCount   int
}

// Config configures one execution fence.
type Config struct {
	Mount       vfs.Mount
	BinPath     string
	BinArgs     []string
	Env         []string
	UID, GID    uint32
	Limits      ResourceLimits
	ExecTimeout time.Duration
}

// Result is what a clean contract run produces.
type Result struct {
	StateHash  hash.H32
	PatchHash  hash.H32
	OutputHash hash.H32
	Outputs    map[hash.H32][]byte
}

// Fence runs one round's execution under Config.
type Fence struct {
	cfg Config
}

// New builds a Fence.
func New(cfg Config) *Fence { return &Fence{cfg: cfg} }

// Run acquires the RW session, feeds inputs (keyed by their content digest) to
// the contract process, and collects outputs. On any breach of
// Config.Limits, ExecTimeout, or a nonzero exit, it returns ok=false and
// releases the RW session without promoting it — the caller proposes
// without execution results.
func (f *Fence) Run(ctx context.Context, inputs map[hash.H32][]byte) (Result, bool, error) {
	session, err := f.cfg.Mount.AcquireRW(ctx)
	if err != nil {
		return Result{}, false, hperrors.ExecFailed("acquire_rw_failed", err)
	}

	ok, outputs, execErr := f.execute(ctx, session, inputs)
	if !ok {
		if relErr := f.cfg.Mount.ReleaseRW(ctx, session); relErr != nil {
			return Result{}, false, hperrors.Fatal("release_rw_failed", relErr)
		}
		return Result{}, false, execErr
	}

	stateHash, err := f.cfg.Mount.GetHash(ctx, session, "/state")
	if err != nil {
		_ = f.cfg.Mount.ReleaseRW(ctx, session)
		return Result{}, false, hperrors.ExecFailed("state_hash_unavailable", err)
	}
	patchHash, err := f.cfg.Mount.GetHash(ctx, session, "/patch.cfg")
	if err != nil {
		_ = f.cfg.Mount.ReleaseRW(ctx, session)
		return Result{}, false, hperrors.ExecFailed("patch_hash_unavailable", err)
	}

	return Result{
		StateHash:  stateHash,
		PatchHash:  patchHash,
		OutputHash: HashOutputs(outputs),
		Outputs:    outputs,
	}, true, nil
}

// execute materializes inputs, spawns the contract, and waits for it to
// exit or be killed on timeout/resource breach. The RW session is left
// acquired; the caller (Run) decides whether to release it.
func (f *Fence) execute(ctx context.Context, session vfs.Session, inputs map[hash.H32][]byte) (bool, map[hash.H32][]byte, error) {
	for digest, body := range inputs {
		vpath := fmt.Sprintf("/in/%s", digest.String())
		blocks := chunk(body, vfs.BlockSize)
		for i, b := range blocks {
			if err := f.cfg.Mount.WriteBlock(ctx, session, vpath, i, b); err != nil {
				return false, nil, hperrors.ExecFailed("materialize_input_failed", err)
			}
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, f.cfg.ExecTimeout)
	defer cancel()

	args := append([]string{"/bin/sh", "-c", ulimitScript(f.cfg.Limits), f.cfg.BinPath}, f.cfg.BinArgs...)
	cmd := exec.CommandContext(execCtx, args[0], args[1:]...)
	cmd.Env = f.cfg.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: f.cfg.UID, Gid: f.cfg.GID},
		Setpgid:    true,
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Start(); err != nil {
		return false, nil, hperrors.ExecFailed("spawn_failed", err)
	}

	waitErr := cmd.Wait()
	if execCtx.Err() == context.DeadlineExceeded {
		// kill the whole process group; the child may have forked.
		_ = unix.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		return false, nil, hperrors.ExecFailed("exec_timeout", execCtx.Err())
	}
	if waitErr != nil {
		return false, nil, hperrors.ExecFailed("nonzero_exit", waitErr)
	}

	return true, map[hash.H32][]byte{hash.Sum(stdout.Bytes()): stdout.Bytes()}, nil
}

// ulimitScript builds the shell preamble that applies Config.Limits before
// exec'ing the contract binary: $0 is the binary path and "$@" its args,
// since os/exec has no portable per-child rlimit knob.
func ulimitScript(l ResourceLimits) string {
	return fmt.Sprintf(
		`ulimit -t %d; ulimit -v %d; ulimit -n %d; exec "$0" "$@"`,
		l.CPUSeconds, l.MemBytes/1024, l.OFDCount,
	)
}

func chunk(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var out [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

// HashOutputs deterministically hashes a set of contract outputs, independent of
// map iteration order.
func HashOutputs(outputs map[hash.H32][]byte) hash.H32 {
	keys := make([]hash.H32, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	var parts [][]byte
	for _, k := range keys {
		parts = append(parts, k[:])
	}
	return hash.SumAll(parts...)
}
