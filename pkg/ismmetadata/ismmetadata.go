// Copyright 2025 Hyperlane
//
// ISM Metadata Builder (C8): recursively builds the metadata blob an ISM
// needs to verify a message, per spec section 4.8 and the blob layouts in
// section 6.3. Grounded on the teacher's recursive proof-assembly shape
// (pkg/proof, since deleted — see DESIGN.md) generalized from a single
// fixed proof type to a dispatch over routing/multisig/aggregation ISM
// module types, with the teacher's "drop failures, check threshold" pattern
// reused for the aggregation branch.
package ismmetadata

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/merkle"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/quorum"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// ModuleType identifies the on-chain ISM variant, as reported by its
// moduleType() view.
type ModuleType int

const (
	ModuleTypeUnused ModuleType = iota
	ModuleTypeRouting
	ModuleTypeAggregation
	ModuleTypeLegacyMultisig
	ModuleTypeMerkleRootMultisig
	ModuleTypeMessageIdMultisig
)

// ErrMaxDepthExceeded is returned when a routing/aggregation chain recurses
// past MaxDepth.
var ErrMaxDepthExceeded = errors.New("ismmetadata: max recursion depth exceeded")

// DefaultMaxDepth matches spec section 4.8's default.
const DefaultMaxDepth = 5

// MultisigConfig is the (validators, threshold) a multisig ISM reports.
type MultisigConfig struct {
	Validators []ValidatorEntry
	Threshold  uint64
}

// ValidatorEntry is one validator as declared by a multisig ISM, in
// ism-index order.
type ValidatorEntry struct {
	Address  types.H256
	Weight   uint64
	IsmIndex int
}

// AggregationConfig is the (sub_isms, threshold) an aggregation ISM reports.
type AggregationConfig struct {
	SubIsms   []common.Address
	Threshold int
}

// Resolver queries ISM and recipient contracts for the structure the
// builder needs. The concrete implementation is EVMResolver in evm.go,
// backed by eth_call against the ISM/recipient ABI.
type Resolver interface {
	RecipientIsm(ctx context.Context, recipient common.Address) (common.Address, error)
	ModuleType(ctx context.Context, ism common.Address) (ModuleType, error)
	Route(ctx context.Context, ism common.Address, message types.Message) (common.Address, error)
	MultisigConfig(ctx context.Context, ism common.Address) (MultisigConfig, error)
	AggregationConfig(ctx context.Context, ism common.Address) (AggregationConfig, error)
	OriginMerkleHookAddress(ctx context.Context, ism common.Address) (types.H256, error)
}

// ValidatorClientFactory resolves a validator's checkpoint-fetching client
// from its address (typically by reading its announced storage location
// and opening the matching checkpointstore.Backend).
type ValidatorClientFactory func(validator types.H256) quorum.ValidatorClient

// ProofSource supplies the Merkle proof for a dispatched message, used by
// the merkle-root multisig variant.
type ProofSource interface {
	Proof(index uint32) (merkle.Proof, error)
}

// Builder assembles ISM metadata blobs.
type Builder struct {
	resolver      Resolver
	clientFactory ValidatorClientFactory
	proofs        ProofSource
	maxDepth      int
}

// NewBuilder constructs a Builder. proofs may be nil if merkle-root variant
// ISMs are not in use.
func NewBuilder(resolver Resolver, clientFactory ValidatorClientFactory, proofs ProofSource, maxDepth int) *Builder {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Builder{resolver: resolver, clientFactory: clientFactory, proofs: proofs, maxDepth: maxDepth}
}

// Build resolves recipient's ISM and builds its metadata for message, whose
// dispatch occupies messageIndex in the origin mailbox's tree. hi bounds
// the quorum search (typically the mailbox's current dispatch count). A
// nil, nil result means "metadata unavailable, retry later" (spec 4.8); a
// non-nil error is a hard failure.
func (b *Builder) Build(ctx context.Context, recipient common.Address, message types.Message, messageIndex, hi uint32) ([]byte, error) {
	ism, err := b.resolver.RecipientIsm(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("ismmetadata: resolve recipient ism: %w", err)
	}
	return b.build(ctx, ism, message, messageIndex, hi, 0)
}

func (b *Builder) build(ctx context.Context, ism common.Address, message types.Message, messageIndex, hi uint32, depth int) ([]byte, error) {
	if depth > b.maxDepth {
		return nil, ErrMaxDepthExceeded
	}

	moduleType, err := b.resolver.ModuleType(ctx, ism)
	if err != nil {
		return nil, fmt.Errorf("ismmetadata: module type of %s: %w", ism, err)
	}

	switch moduleType {
	case ModuleTypeRouting:
		return b.buildRouting(ctx, ism, message, messageIndex, hi, depth)
	case ModuleTypeMessageIdMultisig, ModuleTypeLegacyMultisig, ModuleTypeMerkleRootMultisig:
		return b.buildMultisig(ctx, ism, message, messageIndex, hi, moduleType)
	case ModuleTypeAggregation:
		return b.buildAggregation(ctx, ism, message, messageIndex, hi, depth)
	default:
		return nil, fmt.Errorf("ismmetadata: unsupported module type %d for %s", moduleType, ism)
	}
}

func (b *Builder) buildRouting(ctx context.Context, ism common.Address, message types.Message, messageIndex, hi uint32, depth int) ([]byte, error) {
	inner, err := b.resolver.Route(ctx, ism, message)
	if err != nil {
		return nil, fmt.Errorf("ismmetadata: route from %s: %w", ism, err)
	}
	return b.build(ctx, inner, message, messageIndex, hi, depth+1)
}

func (b *Builder) buildMultisig(ctx context.Context, ism common.Address, message types.Message, messageIndex, hi uint32, moduleType ModuleType) ([]byte, error) {
	cfg, err := b.resolver.MultisigConfig(ctx, ism)
	if err != nil {
		return nil, fmt.Errorf("ismmetadata: multisig config of %s: %w", ism, err)
	}

	members := make([]quorum.Member, 0, len(cfg.Validators))
	for _, v := range cfg.Validators {
		members = append(members, quorum.Member{
			Address:  v.Address,
			Weight:   v.Weight,
			IsmIndex: v.IsmIndex,
			Client:   b.clientFactory(v.Address),
		})
	}
	agg := quorum.NewAggregator(members, cfg.Threshold, nil)

	signed, err := agg.FindQuorum(ctx, messageIndex, hi)
	if err != nil {
		return nil, fmt.Errorf("ismmetadata: quorum search for %s: %w", ism, err)
	}
	if signed == nil {
		return nil, nil
	}

	originHook, err := b.resolver.OriginMerkleHookAddress(ctx, ism)
	if err != nil {
		return nil, fmt.Errorf("ismmetadata: origin merkle hook of %s: %w", ism, err)
	}

	if moduleType == ModuleTypeMerkleRootMultisig && b.proofs != nil {
		if _, err := b.proofs.Proof(messageIndex); err != nil {
			return nil, fmt.Errorf("ismmetadata: merkle proof for index %d: %w", messageIndex, err)
		}
	}

	return formatMultisigMetadata(originHook, signed), nil
}

// formatMultisigMetadata implements the message-id multisig layout of spec
// section 6.3: origin hook address, signed root, signed index, then
// signatures in ism-index ascending order (already sorted by the
// aggregator).
func formatMultisigMetadata(originHook types.H256, signed *types.MultisigSignedCheckpoint) []byte {
	blob := make([]byte, 0, 32+32+4+len(signed.Signatures)*types.SignatureSize)
	blob = append(blob, originHook.Bytes()...)
	blob = append(blob, signed.Checkpoint.Root.Bytes()...)
	indexBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(indexBuf, signed.Checkpoint.Index)
	blob = append(blob, indexBuf...)
	for _, sig := range signed.Signatures {
		blob = append(blob, sig[:]...)
	}
	return blob
}

func (b *Builder) buildAggregation(ctx context.Context, ism common.Address, message types.Message, messageIndex, hi uint32, depth int) ([]byte, error) {
	cfg, err := b.resolver.AggregationConfig(ctx, ism)
	if err != nil {
		return nil, fmt.Errorf("ismmetadata: aggregation config of %s: %w", ism, err)
	}

	payloads := make([][]byte, len(cfg.SubIsms))
	var wg sync.WaitGroup
	for i, sub := range cfg.SubIsms {
		wg.Add(1)
		go func(i int, sub common.Address) {
			defer wg.Done()
			payload, err := b.build(ctx, sub, message, messageIndex, hi, depth+1)
			if err != nil || payload == nil {
				return
			}
			payloads[i] = payload
		}(i, sub)
	}
	wg.Wait()

	succeeded := 0
	for _, p := range payloads {
		if p != nil {
			succeeded++
		}
	}
	if succeeded < cfg.Threshold {
		return nil, nil
	}
	return formatAggregationMetadata(payloads), nil
}

// formatAggregationMetadata implements spec section 6.3's packed
// ranges-plus-payloads layout: N (start,end) offset pairs followed by the
// concatenated payloads; a missing sub-metadata is start==end.
func formatAggregationMetadata(payloads [][]byte) []byte {
	n := len(payloads)
	header := make([]byte, 8*n)
	body := make([]byte, 0)
	offset := uint32(8 * n)
	for i, p := range payloads {
		start := offset
		end := offset
		if p != nil {
			end = start + uint32(len(p))
			body = append(body, p...)
			offset = end
		}
		binary.BigEndian.PutUint32(header[8*i:8*i+4], start)
		binary.BigEndian.PutUint32(header[8*i+4:8*i+8], end)
	}
	return append(header, body...)
}
