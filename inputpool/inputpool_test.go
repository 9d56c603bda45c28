package inputpool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/inputpool"
)

func signedInput(t *testing.T, nonce uint64, body string) (inputpool.Input, hpcrypto.Identity) {
	t.Helper()
	id, err := hpcrypto.Generate()
	require.NoError(t, err)
	in := inputpool.Input{
		PubKey:    id.Public,
		Container: []byte(body),
		Protocol:  inputpool.ProtocolJSON,
		Nonce:     nonce,
	}
	in.Sig = id.Sign(in.Container)
	return in, id
}

func TestIngestRejectsBadSignature(t *testing.T) {
	pool := inputpool.New(10, 1<<20)
	in, _ := signedInput(t, 1, "hi")
	in.Sig = []byte("garbage")

	err := pool.Ingest(in, inputpool.DefaultVerifier, 1)
	require.Error(t, err)
	require.Equal(t, inputpool.ErrBadSignature, err.(*inputpool.RejectError).Reason)
}

func TestIngestAndDrain(t *testing.T) {
	pool := inputpool.New(10, 1<<20)
	in, _ := signedInput(t, 1, "hi")

	require.NoError(t, pool.Ingest(in, inputpool.DefaultVerifier, 1))
	drained := pool.Drain()
	require.Len(t, drained, 1)
	require.Equal(t, in.Digest(), drained[0].Digest())

	// a second drain sees nothing left.
	require.Empty(t, pool.Drain())
}

func TestReplayWithinWindowRejected(t *testing.T) {
	pool := inputpool.New(10, 1<<20)
	in, _ := signedInput(t, 1, "hi")

	require.NoError(t, pool.Ingest(in, inputpool.DefaultVerifier, 5))
	pool.MarkAdmitted([]inputpool.Input{in}, 5)

	// round 6 to 15 (5+10) is within the replay window.
	err := pool.Ingest(in, inputpool.DefaultVerifier, 15)
	require.Error(t, err)
	require.Equal(t, inputpool.ErrReplay, err.(*inputpool.RejectError).Reason)

	// round 16 is outside the window.
	require.NoError(t, pool.Ingest(in, inputpool.DefaultVerifier, 16))
}

func TestQuotaExceeded(t *testing.T) {
	pool := inputpool.New(10, 4)
	in, _ := signedInput(t, 1, "hello world") // 11 bytes > cap of 4

	err := pool.Ingest(in, inputpool.DefaultVerifier, 1)
	require.Error(t, err)
	require.Equal(t, inputpool.ErrQuotaExceeded, err.(*inputpool.RejectError).Reason)
}

func TestOrderedHashesDeterministic(t *testing.T) {
	in1, _ := signedInput(t, 1, "aaa")
	in2, _ := signedInput(t, 2, "bbb")

	o1 := inputpool.OrderedHashes([]inputpool.Input{in1, in2})
	o2 := inputpool.OrderedHashes([]inputpool.Input{in2, in1})
	require.Equal(t, o1, o2)
}
