// Copyright 2025 Hyperlane
//
// validator is the entrypoint for the Validator Submitter (C11): it
// backfills and then continuously signs and publishes checkpoints for one
// origin chain, per spec section 6.6's process-level surface.
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

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/checkpointstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/config"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/indexer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/msgstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/signer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/validatorsubmit"
)

const (
	exitClean       = 0
	exitTaskError   = 1
	exitConfigError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "validator.yaml", "path to the agent config file")
	flag.Parse()

	runID := uuid.New()
	logger := log.New(os.Stderr, fmt.Sprintf("[validator %s] ", runID), log.LstdFlags)

	settings, err := config.Load(*configPath)
	if err != nil {
		logger.Printf("config: %v", err)
		return exitConfigError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serveMetrics(settings.MetricsPort, logger)

	submitter, err := buildSubmitter(ctx, settings, logger)
	if err != nil {
		logger.Printf("build: %v", err)
		return exitConfigError
	}

	if err := submitter.Live(ctx, settings.SignedCheckpointPollingInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("run: %v", err)
		return exitTaskError
	}
	return exitClean
}

// serveMetrics starts the Prometheus /metrics endpoint in the background.
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

func buildSubmitter(ctx context.Context, settings *config.Settings, logger *log.Logger) (*validatorsubmit.Submitter, error) {
	origin, ok := settings.Chains[settings.OriginChain]
	if !ok {
		return nil, fmt.Errorf("origin chain %q not configured", settings.OriginChain)
	}
	if origin.Kind != types.ChainKindEthereum {
		return nil, fmt.Errorf("chain kind %q not supported by this build's cmd/validator wiring", origin.Kind)
	}
	if origin.Signer == nil || origin.Signer.Key == "" {
		return nil, fmt.Errorf("origin chain %q has no signer configured", settings.OriginChain)
	}

	client, err := ethclient.DialContext(ctx, origin.Connection)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	validatorSigner, err := signer.NewLocalFromHex(origin.Signer.Key)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}

	mailbox := common.HexToAddress(origin.Mailbox)
	merkleTreeHook := common.HexToAddress(origin.MerkleTreeHook)

	chunk := origin.Index.Chunk
	if chunk == 0 {
		chunk = 1000
	}
	dispatchIndexer := indexer.NewEVMDispatchIndexer(client, mailbox)
	store := msgstore.New(msgstore.NewMemoryKV())
	if err := backfillMessageStore(ctx, dispatchIndexer, store, chunk); err != nil {
		return nil, fmt.Errorf("backfill message store: %w", err)
	}

	backend, err := buildCheckpointBackend(ctx, settings.CheckpointSyncer)
	if err != nil {
		return nil, fmt.Errorf("checkpoint backend: %w", err)
	}
	checkpointStore := checkpointstore.New(backend)

	chainReader := validatorsubmit.NewEVMChainReader(client, merkleTreeHook, origin.Domain, origin.ReorgPeriod)

	return validatorsubmit.New(store, checkpointStore, chainReader, validatorSigner, logger), nil
}

// backfillMessageStore ingests every dispatch log the mailbox has emitted
// so far into store, so the submitter's backfill loop finds every leaf by
// nonce without needing its own contract-sync cursor.
func backfillMessageStore(ctx context.Context, idx *indexer.EVMDispatchIndexer, store *msgstore.Store, chunk uint64) error {
	count, tip, err := idx.LatestSequenceCountAndTip(ctx)
	if err != nil {
		return err
	}
	if count == nil || *count == 0 {
		return nil
	}

	var from uint64
	for from <= tip {
		to := from + chunk
		if to > tip {
			to = tip
		}
		indexed, metas, err := idx.FetchLogsInRange(ctx, indexer.Blocks(from, to))
		if err != nil {
			return err
		}
		for i, m := range indexed {
			if _, err := store.StoreMessage(ctx, m.Value, metas[i]); err != nil {
				return err
			}
		}
		if to == tip {
			break
		}
		from = to + 1
	}
	return nil
}

func buildCheckpointBackend(ctx context.Context, cfg config.CheckpointSyncerConfig) (checkpointstore.Backend, error) {
	switch cfg.Kind {
	case "localStorage", "":
		return checkpointstore.NewLocalFS(cfg.Path)
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build gcs client: %w", err)
		}
		return checkpointstore.NewGCS(client, cfg.Bucket, cfg.Path, nil), nil
	default:
		return nil, fmt.Errorf("unsupported checkpointSyncer kind %q", cfg.Kind)
	}
}
