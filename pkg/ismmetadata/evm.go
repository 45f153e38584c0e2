// Copyright 2025 Hyperlane
//
// EVMResolver: the concrete Resolver the relayer wires into Builder,
// grounded on the same raw-selector eth_call pattern pkg/provider/evm.go
// and pkg/indexer/evm.go already use, rather than pulling in a generated
// contract binding for each ISM variant.
package ismmetadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"cloud.google.com/go/storage"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/checkpointstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/quorum"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

var (
	recipientIsmSelector  = crypto.Keccak256([]byte("interchainSecurityModule()"))[:4]
	moduleTypeSelector    = crypto.Keccak256([]byte("moduleType()"))[:4]
	routeSelector         = crypto.Keccak256([]byte("route(bytes)"))[:4]
	validatorsThreshold   = crypto.Keccak256([]byte("validatorsAndThreshold(bytes)"))[:4]
	modulesThreshold      = crypto.Keccak256([]byte("modulesAndThreshold(bytes)"))[:4]
	originMerkleTreeHook  = crypto.Keccak256([]byte("originMerkleTreeHook()"))[:4]
)

// EVMResolver implements Resolver against live ISM and recipient contracts
// on one EVM chain.
type EVMResolver struct {
	client *ethclient.Client
}

// NewEVMResolver builds a Resolver bound to client.
func NewEVMResolver(client *ethclient.Client) *EVMResolver {
	return &EVMResolver{client: client}
}

func (r *EVMResolver) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	result, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("ismmetadata: call %s: %w", to, err)
	}
	return result, nil
}

func (r *EVMResolver) RecipientIsm(ctx context.Context, recipient common.Address) (common.Address, error) {
	result, err := r.call(ctx, recipient, recipientIsmSelector)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := unpackAddress(result)
	if err != nil {
		return common.Address{}, fmt.Errorf("ismmetadata: recipient ism of %s: %w", recipient, err)
	}
	return addr, nil
}

func (r *EVMResolver) ModuleType(ctx context.Context, ism common.Address) (ModuleType, error) {
	result, err := r.call(ctx, ism, moduleTypeSelector)
	if err != nil {
		return ModuleTypeUnused, err
	}
	uint8Type, _ := abi.NewType("uint8", "", nil)
	out, err := abi.Arguments{{Type: uint8Type}}.Unpack(result)
	if err != nil || len(out) != 1 {
		return ModuleTypeUnused, fmt.Errorf("ismmetadata: unpack module type of %s: %w", ism, err)
	}
	v, ok := out[0].(uint8)
	if !ok {
		return ModuleTypeUnused, fmt.Errorf("ismmetadata: module type result of %s is not uint8", ism)
	}
	return ModuleType(v), nil
}

func (r *EVMResolver) Route(ctx context.Context, ism common.Address, message types.Message) (common.Address, error) {
	bytesType, _ := abi.NewType("bytes", "", nil)
	packed, err := abi.Arguments{{Type: bytesType}}.Pack(message.Encode())
	if err != nil {
		return common.Address{}, fmt.Errorf("ismmetadata: pack route args: %w", err)
	}
	result, err := r.call(ctx, ism, append(append([]byte{}, routeSelector...), packed...))
	if err != nil {
		return common.Address{}, err
	}
	addr, err := unpackAddress(result)
	if err != nil {
		return common.Address{}, fmt.Errorf("ismmetadata: route of %s: %w", ism, err)
	}
	return addr, nil
}

// MultisigConfig calls validatorsAndThreshold(bytes), the standard static
// multisig ISM view. It carries no per-validator weight, so every validator
// is reported with weight 1 and the ISM's threshold counts validators.
func (r *EVMResolver) MultisigConfig(ctx context.Context, ism common.Address) (MultisigConfig, error) {
	addrs, threshold, err := r.addressesAndThreshold(ctx, ism, validatorsThreshold)
	if err != nil {
		return MultisigConfig{}, fmt.Errorf("ismmetadata: validators and threshold of %s: %w", ism, err)
	}
	validators := make([]ValidatorEntry, len(addrs))
	for i, a := range addrs {
		validators[i] = ValidatorEntry{Address: addressToH256(a), Weight: 1, IsmIndex: i}
	}
	return MultisigConfig{Validators: validators, Threshold: uint64(threshold)}, nil
}

func (r *EVMResolver) AggregationConfig(ctx context.Context, ism common.Address) (AggregationConfig, error) {
	addrs, threshold, err := r.addressesAndThreshold(ctx, ism, modulesThreshold)
	if err != nil {
		return AggregationConfig{}, fmt.Errorf("ismmetadata: modules and threshold of %s: %w", ism, err)
	}
	return AggregationConfig{SubIsms: addrs, Threshold: int(threshold)}, nil
}

// addressesAndThreshold packs a dummy empty-message argument and unpacks
// the shared (address[], uint8) return shape both validatorsAndThreshold
// and modulesAndThreshold use.
func (r *EVMResolver) addressesAndThreshold(ctx context.Context, ism common.Address, selector []byte) ([]common.Address, uint8, error) {
	bytesType, _ := abi.NewType("bytes", "", nil)
	packed, err := abi.Arguments{{Type: bytesType}}.Pack([]byte{})
	if err != nil {
		return nil, 0, fmt.Errorf("pack args: %w", err)
	}
	result, err := r.call(ctx, ism, append(append([]byte{}, selector...), packed...))
	if err != nil {
		return nil, 0, err
	}
	addrSliceType, _ := abi.NewType("address[]", "", nil)
	uint8Type, _ := abi.NewType("uint8", "", nil)
	out, err := abi.Arguments{{Type: addrSliceType}, {Type: uint8Type}}.Unpack(result)
	if err != nil || len(out) != 2 {
		return nil, 0, fmt.Errorf("unpack: %w", err)
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, 0, fmt.Errorf("first return value is not address[]")
	}
	threshold, ok := out[1].(uint8)
	if !ok {
		return nil, 0, fmt.Errorf("second return value is not uint8")
	}
	return addrs, threshold, nil
}

// OriginMerkleHookAddress calls originMerkleTreeHook(), an adaptation of
// the multisig ISM's per-origin hook lookup to a single configured value,
// since this build resolves one merkle tree hook per chain rather than a
// per-origin-domain mapping (spec section 6.5's ChainSetup carries exactly
// one merkleTreeHook per chain).
func (r *EVMResolver) OriginMerkleHookAddress(ctx context.Context, ism common.Address) (types.H256, error) {
	result, err := r.call(ctx, ism, originMerkleTreeHook)
	if err != nil {
		return types.H256{}, err
	}
	bytes32Type, _ := abi.NewType("bytes32", "", nil)
	out, err := abi.Arguments{{Type: bytes32Type}}.Unpack(result)
	if err != nil || len(out) != 1 {
		return types.H256{}, fmt.Errorf("ismmetadata: unpack origin merkle hook of %s: %w", ism, err)
	}
	hash, ok := out[0].([32]byte)
	if !ok {
		return types.H256{}, fmt.Errorf("ismmetadata: origin merkle hook result of %s is not bytes32", ism)
	}
	return types.H256(hash), nil
}

func unpackAddress(result []byte) (common.Address, error) {
	addressType, _ := abi.NewType("address", "", nil)
	out, err := abi.Arguments{{Type: addressType}}.Unpack(result)
	if err != nil || len(out) != 1 {
		return common.Address{}, fmt.Errorf("unpack address: %w", err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("result is not an address")
	}
	return addr, nil
}

func addressToH256(a common.Address) types.H256 {
	var h types.H256
	copy(h[12:], a.Bytes())
	return h
}

// ValidatorAnnounce is the subset of the ValidatorAnnounce contract the
// client factory needs: each validator's announced checkpoint storage
// locations, in announcement order (most recent last).
type ValidatorAnnounce interface {
	StorageLocations(ctx context.Context, validator common.Address) ([]string, error)
}

// EVMValidatorAnnounce calls getAnnouncedStorageLocations(address[]) on a
// ValidatorAnnounce contract.
type EVMValidatorAnnounce struct {
	client    *ethclient.Client
	announce  common.Address
}

// NewEVMValidatorAnnounce builds an EVMValidatorAnnounce bound to one
// chain's ValidatorAnnounce contract.
func NewEVMValidatorAnnounce(client *ethclient.Client, announce common.Address) *EVMValidatorAnnounce {
	return &EVMValidatorAnnounce{client: client, announce: announce}
}

func (a *EVMValidatorAnnounce) StorageLocations(ctx context.Context, validator common.Address) ([]string, error) {
	selector := crypto.Keccak256([]byte("getAnnouncedStorageLocations(address[])"))[:4]
	addrSliceType, _ := abi.NewType("address[]", "", nil)
	packed, err := abi.Arguments{{Type: addrSliceType}}.Pack([]common.Address{validator})
	if err != nil {
		return nil, fmt.Errorf("ismmetadata: pack storage locations args: %w", err)
	}
	result, err := a.client.CallContract(ctx, ethereum.CallMsg{
		To:   &a.announce,
		Data: append(append([]byte{}, selector...), packed...),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("ismmetadata: call getAnnouncedStorageLocations: %w", err)
	}

	arrayType, _ := abi.NewType("string[][]", "", nil)
	out, err := abi.Arguments{{Type: arrayType}}.Unpack(result)
	if err != nil || len(out) != 1 {
		return nil, fmt.Errorf("ismmetadata: unpack storage locations: %w", err)
	}
	locations, ok := out[0].([][]string)
	if !ok {
		return nil, fmt.Errorf("ismmetadata: storage locations result is not string[][]")
	}
	if len(locations) != 1 {
		return nil, fmt.Errorf("ismmetadata: expected locations for one validator, got %d", len(locations))
	}
	return locations[0], nil
}

// NewGCSBackedClientFactory builds a ValidatorClientFactory that resolves
// each validator's most recent announced storage location and opens a
// matching checkpointstore.Backend: "gs://bucket/prefix" against gcsClient,
// "file://path" against the local filesystem. A validator with no
// resolvable location, or whose announcement lookup fails, gets a client
// that reports itself as having no checkpoints, which the quorum
// aggregator already treats as a non-participating member.
func NewGCSBackedClientFactory(ctx context.Context, announce ValidatorAnnounce, gcsClient *storage.Client, logger interface {
	Printf(format string, v ...any)
}) func(validator types.H256) quorum.ValidatorClient {
	return func(validator types.H256) quorum.ValidatorClient {
		addr := common.BytesToAddress(validator[12:])
		locations, err := announce.StorageLocations(ctx, addr)
		if err != nil || len(locations) == 0 {
			return unavailableClient{}
		}
		backend, err := openBackend(locations[len(locations)-1], gcsClient)
		if err != nil {
			if logger != nil {
				logger.Printf("ismmetadata: validator %s: %v", addr, err)
			}
			return unavailableClient{}
		}
		return checkpointstore.New(backend)
	}
}

func openBackend(location string, gcsClient *storage.Client) (checkpointstore.Backend, error) {
	switch {
	case strings.HasPrefix(location, "file://"):
		return checkpointstore.NewLocalFS(strings.TrimPrefix(location, "file://"))
	case strings.HasPrefix(location, "gs://"):
		rest := strings.TrimPrefix(location, "gs://")
		parts := strings.SplitN(rest, "/", 2)
		bucket := parts[0]
		prefix := ""
		if len(parts) == 2 {
			prefix = parts[1]
		}
		if gcsClient == nil {
			return nil, fmt.Errorf("location %q requires a GCS client", location)
		}
		return checkpointstore.NewGCS(gcsClient, bucket, prefix, nil), nil
	default:
		return nil, fmt.Errorf("unsupported storage location scheme: %q", location)
	}
}

// unavailableClient is a quorum.ValidatorClient for a validator whose
// storage location could not be resolved; it reports no checkpoints at any
// index, so the aggregator's quorum search simply skips it.
type unavailableClient struct{}

func (unavailableClient) LatestIndex(context.Context) (*uint32, error) { return nil, nil }
func (unavailableClient) FetchCheckpoint(context.Context, uint32) (*types.SignedCheckpointWithMessageId, error) {
	return nil, nil
}
