// Copyright 2025 Hyperlane

package ismmetadata

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/quorum"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/signer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

type fakeResolver struct {
	ismFor     map[common.Address]common.Address
	moduleType map[common.Address]ModuleType
	multisig   map[common.Address]MultisigConfig
}

func (f *fakeResolver) RecipientIsm(_ context.Context, recipient common.Address) (common.Address, error) {
	return f.ismFor[recipient], nil
}

func (f *fakeResolver) ModuleType(_ context.Context, ism common.Address) (ModuleType, error) {
	return f.moduleType[ism], nil
}

func (f *fakeResolver) Route(context.Context, common.Address, types.Message) (common.Address, error) {
	return common.Address{}, nil
}

func (f *fakeResolver) MultisigConfig(_ context.Context, ism common.Address) (MultisigConfig, error) {
	return f.multisig[ism], nil
}

func (f *fakeResolver) AggregationConfig(context.Context, common.Address) (AggregationConfig, error) {
	return AggregationConfig{}, nil
}

func (f *fakeResolver) OriginMerkleHookAddress(context.Context, common.Address) (types.H256, error) {
	return types.H256{0xAA}, nil
}

type fakeValidatorClient struct {
	checkpoint *types.SignedCheckpointWithMessageId
}

func (f *fakeValidatorClient) LatestIndex(context.Context) (*uint32, error) {
	idx := f.checkpoint.Value.Index
	return &idx, nil
}

func (f *fakeValidatorClient) FetchCheckpoint(_ context.Context, index uint32) (*types.SignedCheckpointWithMessageId, error) {
	if f.checkpoint.Value.Index != index {
		return nil, nil
	}
	return f.checkpoint, nil
}

func addrToH256(addr common.Address) types.H256 {
	var h types.H256
	copy(h[12:], addr[:])
	return h
}

func TestBuildMultisigMetadata(t *testing.T) {
	ctx := context.Background()
	recipient := common.HexToAddress("0x1")
	ism := common.HexToAddress("0x2")

	key, _ := crypto.GenerateKey()
	local := signer.NewLocal(key)
	root := types.BytesToH256([]byte("root"))
	cp := types.CheckpointWithMessageId{Checkpoint: types.Checkpoint{Index: 5, Root: root}}
	sig, err := local.Sign(cp.SigningHash())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signedCp := &types.SignedCheckpointWithMessageId{Value: cp, Signature: sig}

	resolver := &fakeResolver{
		ismFor:     map[common.Address]common.Address{recipient: ism},
		moduleType: map[common.Address]ModuleType{ism: ModuleTypeMessageIdMultisig},
		multisig: map[common.Address]MultisigConfig{
			ism: {
				Validators: []ValidatorEntry{{Address: addrToH256(local.EthAddress()), Weight: 1, IsmIndex: 0}},
				Threshold:  1,
			},
		},
	}
	clientFactory := func(types.H256) quorum.ValidatorClient {
		return &fakeValidatorClient{checkpoint: signedCp}
	}

	builder := NewBuilder(resolver, clientFactory, nil, 0)
	blob, err := builder.Build(ctx, recipient, types.Message{}, 5, 5)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if blob == nil {
		t.Fatal("expected metadata blob")
	}
	if len(blob) != 32+32+4+types.SignatureSize {
		t.Fatalf("blob length = %d", len(blob))
	}
}

func TestBuildReturnsNilWhenNoQuorum(t *testing.T) {
	ctx := context.Background()
	recipient := common.HexToAddress("0x1")
	ism := common.HexToAddress("0x2")

	key, _ := crypto.GenerateKey()
	local := signer.NewLocal(key)
	root := types.BytesToH256([]byte("root"))
	cp := types.CheckpointWithMessageId{Checkpoint: types.Checkpoint{Index: 3, Root: root}}
	sig, _ := local.Sign(cp.SigningHash())
	signedCp := &types.SignedCheckpointWithMessageId{Value: cp, Signature: sig}

	resolver := &fakeResolver{
		ismFor:     map[common.Address]common.Address{recipient: ism},
		moduleType: map[common.Address]ModuleType{ism: ModuleTypeMessageIdMultisig},
		multisig: map[common.Address]MultisigConfig{
			ism: {
				Validators: []ValidatorEntry{{Address: addrToH256(local.EthAddress()), Weight: 1, IsmIndex: 0}},
				Threshold:  2,
			},
		},
	}
	clientFactory := func(types.H256) quorum.ValidatorClient {
		return &fakeValidatorClient{checkpoint: signedCp}
	}

	builder := NewBuilder(resolver, clientFactory, nil, 0)
	blob, err := builder.Build(ctx, recipient, types.Message{}, 3, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if blob != nil {
		t.Fatal("expected nil metadata when threshold is not met")
	}
}

func TestAggregationMetadataRoundTrip(t *testing.T) {
	payloads := [][]byte{[]byte("abc"), nil, []byte("de")}
	blob := formatAggregationMetadata(payloads)
	if len(blob) != 8*3+3+2 {
		t.Fatalf("blob length = %d", len(blob))
	}
}
