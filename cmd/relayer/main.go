// Copyright 2025 Hyperlane
//
// relayer is the entrypoint for the Relayer Orchestrator (C12): it loads
// the agent config, wires one ChainRuntime per configured chain, and runs
// the orchestrator until an OS signal or a task error ends it, per spec
// section 6.6's process-level surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/config"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/gaspolicy"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/indexer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/ismmetadata"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/msgstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/provider"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/relayer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/signer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// exit codes per spec section 6.6.
const (
	exitClean       = 0
	exitTaskError   = 1
	exitConfigError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "relayer.yaml", "path to the agent config file")
	flag.Parse()

	runID := uuid.New()
	logger := log.New(os.Stderr, fmt.Sprintf("[relayer %s] ", runID), log.LstdFlags)

	settings, err := config.Load(*configPath)
	if err != nil {
		logger.Printf("config: %v", err)
		return exitConfigError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serveMetrics(settings.MetricsPort, logger)

	orch, err := buildOrchestrator(ctx, settings, logger)
	if err != nil {
		logger.Printf("build: %v", err)
		return exitConfigError
	}

	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("run: %v", err)
		return exitTaskError
	}
	return exitClean
}

// serveMetrics starts the Prometheus /metrics endpoint in the background,
// exposing the op-queue pending gauge registered in pkg/opqueue.
func serveMetrics(port int, logger *log.Logger) {
	if port == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := ":" + strconv.Itoa(port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Printf("metrics server: %v", err)
		}
	}()
}

func buildOrchestrator(ctx context.Context, settings *config.Settings, logger *log.Logger) (*relayer.Orchestrator, error) {
	origin, ok := settings.Chains[settings.OriginChain]
	if !ok {
		return nil, fmt.Errorf("origin chain %q not configured", settings.OriginChain)
	}

	var gcsClient *storage.Client
	if settings.CheckpointSyncer.Kind == "gcs" {
		var err error
		gcsClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build gcs client: %w", err)
		}
	}

	oracle := buildPriceOracle(settings)
	enforcer, err := gaspolicy.NewEnforcer(settings.GasPaymentEnforcement, oracle, logger)
	if err != nil {
		return nil, fmt.Errorf("build gas enforcer: %w", err)
	}

	chains := make(map[types.Domain]*relayer.ChainRuntime, len(settings.Chains))
	for name, chain := range settings.Chains {
		runtime, err := buildChainRuntime(ctx, name, chain, settings, gcsClient, enforcer, logger)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", name, err)
		}
		chains[chain.Domain] = runtime
	}

	return relayer.New(origin.Domain, chains, settings.Whitelist, settings.Blacklist, logger)
}

func buildPriceOracle(settings *config.Settings) gaspolicy.PriceOracle {
	coinIDs := make(map[types.Domain]string)
	for _, chain := range settings.Chains {
		coinIDs[chain.Domain] = string(chain.Kind)
	}
	for _, policy := range settings.GasPaymentEnforcement {
		if policy.Policy == "onChainFeeQuoting" {
			return gaspolicy.NewCoinGeckoOracle(policy.CoingeckoAPIKey, coinIDs)
		}
	}
	return nil
}

// buildChainRuntime connects to one chain and constructs the pieces of it
// the orchestrator needs as either an origin or a destination (or both): a
// dispatch/gas-payment indexer pair for the origin, and an ISM metadata
// builder for a destination.
func buildChainRuntime(ctx context.Context, name string, chain config.ChainSetup, settings *config.Settings, gcsClient *storage.Client, enforcer *gaspolicy.Enforcer, logger *log.Logger) (*relayer.ChainRuntime, error) {
	if chain.Kind != types.ChainKindEthereum {
		return nil, fmt.Errorf("chain kind %q not supported by this build's cmd/relayer wiring", chain.Kind)
	}

	client, err := ethclient.DialContext(ctx, chain.Connection)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	mailbox := common.HexToAddress(chain.Mailbox)
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}

	var localSigner *signer.Local
	if chain.Signer != nil && chain.Signer.Key != "" {
		localSigner, err = signer.NewLocalFromHex(chain.Signer.Key)
		if err != nil {
			return nil, fmt.Errorf("signer: %w", err)
		}
	}

	evmProvider := provider.NewEVMProvider(client, localSigner, mailbox, chainID, settings.TransactionGasLimit)
	retrying := provider.NewRetrying(evmProvider)

	store := msgstore.New(msgstore.NewMemoryKV())

	runtime := &relayer.ChainRuntime{
		Domain:       chain.Domain,
		Provider:     retrying,
		MessageStore: store,
		ChunkSize:    chain.Index.Chunk,
		GasEnforcer:  enforcer,
	}

	if name == settings.OriginChain {
		runtime.DispatchIndexer = indexer.NewEVMDispatchIndexer(client, mailbox)
		if chain.InterchainGasPaymaster != "" {
			igp := common.HexToAddress(chain.InterchainGasPaymaster)
			runtime.GasPaymentIndexer = indexer.NewEVMGasPaymentIndexer(client, igp)
		}
	}

	resolver := ismmetadata.NewEVMResolver(client)
	announce := ismmetadata.NewEVMValidatorAnnounce(client, mailbox)
	clientFactory := ismmetadata.NewGCSBackedClientFactory(ctx, announce, gcsClient, logger)
	runtime.IsmBuilder = ismmetadata.NewBuilder(resolver, ismmetadata.ValidatorClientFactory(clientFactory), nil, ismmetadata.DefaultMaxDepth)

	return runtime, nil
}
