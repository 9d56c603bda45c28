package main

import (
	"context"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/hperrors"
	"github.com/hotpocket/hpcore/logsync"
	"github.com/hotpocket/hpcore/statesync"
)

// unwiredFetcher implements both statesync.Fetcher and logsync.Fetcher by
// always failing fast. The real HpfsRequest/HpfsResponse/HpfsLogRequest
// wire codec and the authenticated peer transport it rides on remain a
// non-goal; this process runs a single
// node against its own in-process transport.local hub, so its own vfs
// root never actually diverges from the UNL's and state/log sync never
// has a real peer to fetch from. A multi-node deployment needs a real
// Fetcher wired against the peer wire protocol once that protocol exists.
type unwiredFetcher struct{}

var _ statesync.Fetcher = unwiredFetcher{}
var _ logsync.Fetcher = unwiredFetcher{}

func (unwiredFetcher) FetchNode(ctx context.Context, peer hpcrypto.PubKey, vpath string, expectedHash hash.H32) (statesync.NodeResponse, error) {
	return statesync.NodeResponse{}, hperrors.Transient("sync_fetcher_not_wired", nil)
}

func (unwiredFetcher) FetchBlock(ctx context.Context, peer hpcrypto.PubKey, vpath string, blockIndex int, expectedHash hash.H32) ([]byte, error) {
	return nil, hperrors.Transient("sync_fetcher_not_wired", nil)
}

func (unwiredFetcher) FetchLog(ctx context.Context, peer hpcrypto.PubKey, targetSeqNo, minRecordID uint64) ([]byte, error) {
	return nil, hperrors.Transient("sync_fetcher_not_wired", nil)
}
