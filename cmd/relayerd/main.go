// Relayer Daemon - main entry point for the shielded-payment relayer.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cipherpay/relayer/internal/chain"
	"github.com/cipherpay/relayer/internal/config"
	"github.com/cipherpay/relayer/internal/httpapi"
	"github.com/cipherpay/relayer/internal/relayer"
	"github.com/cipherpay/relayer/internal/storage"
	"github.com/cipherpay/relayer/internal/txmanager"
	"github.com/cipherpay/relayer/internal/zkp"
)

const (
	version = "0.1.0"
	banner  = `
  ___ _       _               ___
 / __(_)_ __ | |_  ___ _ _   | _ \__ _ _  _
| (__| | '_ \| ' \/ -_) '_|  |  _/ _` + "`" + ` | || |
 \___|_| .__/|_||_\___|_|    |_| \__,_|\_, |
       |_|                             |__/
  Relayer Daemon v%s
`
)

func main() {
	fmt.Printf(banner, version)

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	entry := logrus.NewEntry(log)

	cfg, err := config.Load()
	if err != nil {
		entry.WithError(err).Fatal("relayerd: loading configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		entry.Info("relayerd: shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, entry); err != nil {
		entry.WithError(err).Fatal("relayerd: fatal error")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Entry) error {
	hasher, err := zkp.NewHasher()
	if err != nil {
		return fmt.Errorf("initializing Poseidon hasher: %w", err)
	}
	zeros := zkp.NewZeroCache(hasher)

	verifier := zkp.NewVerifier()
	if err := verifier.LoadKeysFromDir(cfg.VKDir); err != nil {
		return fmt.Errorf("loading verifying keys: %w", err)
	}

	store, err := storage.NewFromDSN(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	tree := storage.NewMerkleStore(store, hasher, zeros)
	if _, err := tree.RootAndNextIndex(ctx, cfg.TreeID); err != nil {
		if err := tree.InitializeTree(ctx, cfg.TreeID, cfg.TreeDepth); err != nil {
			return fmt.Errorf("initializing tree %d: %w", cfg.TreeID, err)
		}
		log.WithField("tree_id", cfg.TreeID).Info("relayerd: initialized fresh Merkle tree")
	}

	nullifiers := zkp.NewNullifierSet(storage.NewNullifierMarkerStore(store))
	deposits := zkp.NewDepositMarkerSet(storage.NewDepositMarkerStore(store))
	ledger := storage.NewLedgerStore(store)

	chainClient := chain.NewClient(http.DefaultClient, cfg.RPCURL)

	var programID [32]byte
	copy(programID[:], []byte(cfg.ProgramID))
	cushion := txmanager.NewFundingCushion(txmanager.DefaultFundingCushionConfig())
	builder := txmanager.NewBuilder(chainClient, programID, cushion)

	orchestrator := relayer.NewOrchestrator(verifier, tree, nullifiers, deposits, builder, ledger, log)

	watcher := chain.NewWatcher(cfg.WSURL, cfg.ProgramID, log)
	go watcher.Run(ctx)
	go consumeEvents(ctx, watcher.Events, tree, nullifiers, deposits, log)

	fetcher := chain.NewClientSlotFetcher(chainClient)
	backfiller := chain.NewBackfiller(chainClient, fetcher, cfg.ProgramID, chain.DefaultBackfillConfig(), log)
	go consumeEvents(ctx, backfiller.Events, tree, nullifiers, deposits, log)
	go func() {
		if err := backfiller.Run(ctx, 0); err != nil {
			log.WithError(err).Warn("relayerd: backfill did not complete")
		}
	}()

	server := httpapi.NewServer(tree, orchestrator, cfg.TreeID, log)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", cfg.HTTPAddr).Info("relayerd: listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// consumeEvents applies decoded on-chain events to the off-chain mirror
// (§4.5): deposits and transfers advance the Merkle tree, all three kinds
// mark their replay-prevention tag used. Any error applying an event,
// including the next-index mismatch an already-applied event produces on
// replay, is logged at warn level and the event is skipped.
func consumeEvents(ctx context.Context, events <-chan chain.Event, tree zkp.MerkleStore, nullifiers *zkp.NullifierSet, deposits *zkp.DepositMarkerSet, log *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := applyEvent(ctx, evt, tree, nullifiers, deposits); err != nil {
				log.WithError(err).WithField("kind", evt.Kind).Warn("relayerd: applying chain event")
			}
		}
	}
}

func applyEvent(ctx context.Context, evt chain.Event, tree zkp.MerkleStore, nullifiers *zkp.NullifierSet, deposits *zkp.DepositMarkerSet) error {
	switch evt.Kind {
	case chain.EventDepositCompleted:
		if err := tree.ApplyDepositFromEvent(ctx, evt.TreeID, evt.DepositIndex, evt.DepositCommitment, evt.OldRoot, evt.NewRoot); err != nil {
			return err
		}
		return deposits.MarkUsed(ctx, evt.DepositHash, zkp.SpendRecord{TxSignature: evt.TxSig, SpentAtSlot: evt.Slot})
	case chain.EventTransferCompleted:
		if err := tree.ApplyTransferFromEvent(ctx, evt.TreeID, evt.TransferStartIndex, evt.TransferOut1, evt.TransferOut2, evt.OldRoot, evt.TransferNewRoot1, evt.NewRoot); err != nil {
			return err
		}
		return nullifiers.MarkSpent(ctx, evt.TransferNullifier, zkp.SpendRecord{TxSignature: evt.TxSig, SpentAtSlot: evt.Slot})
	case chain.EventWithdrawCompleted:
		return nullifiers.MarkSpent(ctx, evt.WithdrawNullifier, zkp.SpendRecord{TxSignature: evt.TxSig, SpentAtSlot: evt.Slot})
	default:
		return nil
	}
}
