// Copyright 2025 Hyperlane

package quorum

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/signer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

type fakeValidatorClient struct {
	latest      *uint32
	checkpoints map[uint32]*types.SignedCheckpointWithMessageId
}

func (f *fakeValidatorClient) LatestIndex(context.Context) (*uint32, error) {
	return f.latest, nil
}

func (f *fakeValidatorClient) FetchCheckpoint(_ context.Context, index uint32) (*types.SignedCheckpointWithMessageId, error) {
	return f.checkpoints[index], nil
}

func signedCheckpoint(t *testing.T, local *signer.Local, index uint32, root types.H256) *types.SignedCheckpointWithMessageId {
	t.Helper()
	cp := types.CheckpointWithMessageId{
		Checkpoint: types.Checkpoint{Index: index, Root: root},
		MessageID:  types.H256{},
	}
	sig, err := local.Sign(cp.SigningHash())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return &types.SignedCheckpointWithMessageId{Value: cp, Signature: sig}
}

func addrToH256(addr [20]byte) types.H256 {
	var h types.H256
	copy(h[12:], addr[:])
	return h
}

func TestFindQuorumAssemblesAtHighestAgreedIndex(t *testing.T) {
	ctx := context.Background()
	root := types.BytesToH256([]byte("root"))

	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	key3, _ := crypto.GenerateKey()
	v1 := signer.NewLocal(key1)
	v2 := signer.NewLocal(key2)
	v3 := signer.NewLocal(key3)

	idx10 := uint32(10)
	cp1 := &fakeValidatorClient{latest: &idx10, checkpoints: map[uint32]*types.SignedCheckpointWithMessageId{
		10: signedCheckpoint(t, v1, 10, root),
	}}
	cp2 := &fakeValidatorClient{latest: &idx10, checkpoints: map[uint32]*types.SignedCheckpointWithMessageId{
		10: signedCheckpoint(t, v2, 10, root),
	}}
	cp3 := &fakeValidatorClient{latest: &idx10, checkpoints: map[uint32]*types.SignedCheckpointWithMessageId{
		10: signedCheckpoint(t, v3, 10, root),
	}}

	members := []Member{
		{Address: addrToH256(v1.EthAddress()), Weight: 1, IsmIndex: 0, Client: cp1},
		{Address: addrToH256(v2.EthAddress()), Weight: 1, IsmIndex: 1, Client: cp2},
		{Address: addrToH256(v3.EthAddress()), Weight: 1, IsmIndex: 2, Client: cp3},
	}
	agg := NewAggregator(members, 2, nil)

	result, err := agg.FindQuorum(ctx, 0, 10)
	if err != nil {
		t.Fatalf("FindQuorum: %v", err)
	}
	if result == nil {
		t.Fatal("expected a quorum result")
	}
	if result.Checkpoint.Index != 10 {
		t.Errorf("index = %d, want 10", result.Checkpoint.Index)
	}
	if len(result.Signatures) != 3 {
		t.Errorf("signatures = %d, want 3", len(result.Signatures))
	}
}

func TestFindQuorumReturnsNilBelowThreshold(t *testing.T) {
	ctx := context.Background()
	root := types.BytesToH256([]byte("root"))
	key1, _ := crypto.GenerateKey()
	v1 := signer.NewLocal(key1)

	idx5 := uint32(5)
	cp1 := &fakeValidatorClient{latest: &idx5, checkpoints: map[uint32]*types.SignedCheckpointWithMessageId{
		5: signedCheckpoint(t, v1, 5, root),
	}}
	members := []Member{
		{Address: addrToH256(v1.EthAddress()), Weight: 1, IsmIndex: 0, Client: cp1},
	}
	agg := NewAggregator(members, 5, nil)

	result, err := agg.FindQuorum(ctx, 0, 5)
	if err != nil {
		t.Fatalf("FindQuorum: %v", err)
	}
	if result != nil {
		t.Fatal("expected nil result when no quorum forms")
	}
}

func TestFindQuorumReturnsNilBelowLo(t *testing.T) {
	ctx := context.Background()
	root := types.BytesToH256([]byte("root"))
	key1, _ := crypto.GenerateKey()
	v1 := signer.NewLocal(key1)

	idx5 := uint32(5)
	cp1 := &fakeValidatorClient{latest: &idx5, checkpoints: map[uint32]*types.SignedCheckpointWithMessageId{
		5: signedCheckpoint(t, v1, 5, root),
	}}
	members := []Member{
		{Address: addrToH256(v1.EthAddress()), Weight: 1, IsmIndex: 0, Client: cp1},
	}
	agg := NewAggregator(members, 1, nil)

	result, err := agg.FindQuorum(ctx, 10, 20)
	if err != nil {
		t.Fatalf("FindQuorum: %v", err)
	}
	if result != nil {
		t.Fatal("expected nil result when highest quorum index is below lo")
	}
}
