package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/corexec/corexec/consensus"
	"github.com/corexec/corexec/consensus/ethash"
	"github.com/corexec/corexec/consensus/merge"
	"github.com/corexec/corexec/core/state"
	"github.com/corexec/corexec/core/txpool"
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
	"github.com/corexec/corexec/erigon-lib/crypto"
	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/kv/memdb"
	"github.com/corexec/corexec/erigon-lib/log"
	st "github.com/corexec/corexec/erigon-lib/state"
	"github.com/corexec/corexec/eth/stagedsync"
	"github.com/corexec/corexec/turbo/engineapi"
	"github.com/corexec/corexec/turbo/jsonrpc"
)

func newServeCommand(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the staged-sync pipeline behind the JSON-RPC and Engine API façades",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config) error {
	logDir := cfg.logDir
	if logDir == "" {
		logDir = filepath.Join(cfg.dataDir, "logs")
	}
	if err := cfg.fs.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	logger := log.NewFileRotating(logDir, int(cfg.logFileSize/datasizeMB), 5, 30)

	dataDirLock, err := acquireDataDirLock(cfg.dataDir)
	if err != nil {
		return err
	}
	defer dataDirLock.Unlock()

	secret, err := loadOrCreateJWTSecret(cfg)
	if err != nil {
		return err
	}

	db := memdb.New(kv.ChaindataTables)
	defer db.Close()

	agg := st.NewAggregator(cfg.stepSize, cfg.withHistory)

	if err := seedGenesis(ctx, db, cfg.blockGasLimit); err != nil {
		return err
	}

	selector := consensus.Selector{
		MergeHeight: cfg.mergeHeight,
		PoW:         ethash.New(ethash.ForkSchedule{}),
		PoS:         merge.New(ethash.New(ethash.ForkSchedule{})),
	}

	pool := txpool.New(&poolAccountReader{db: db, agg: agg}, cfg.blockGasLimit, common.NewU256(cfg.minGasPriceWei), 16, 10_000)

	source := engineapi.NewPayloadSource()

	newReader := func(tx kv.Tx) state.StateReader {
		reader := state.NewHistoryReaderV3(agg)
		reader.SetTx(st.NewTemporalTx(tx, agg))
		reader.SetTxNum(st.LatestTxNum)
		return reader
	}
	txAlloc := &st.TxNumAllocator{}
	newWriter := func(tx kv.RwTx) state.StateWriter {
		return state.NewTemporalWriter(st.NewTemporalRwTx(tx, agg), txAlloc.Next())
	}
	stateRoot := func(reader state.StateReader, touched []common.Address) (common.Hash, error) {
		return state.ComputeStateRoot(reader, touched)
	}

	stages := []stagedsync.Stage{
		stagedsync.HeadersStage(source, selector),
		stagedsync.BlockHashesStage(),
		stagedsync.BodiesStage(source),
		stagedsync.SendersStage(recoverSender),
		stagedsync.ExecutionStage(newReader, newWriter, stubExecutor, stateRoot),
		stagedsync.TxLookupStage(),
		stagedsync.FinishStage(func(head uint64) { logger.Info("new head", "number", head) }),
	}
	driver := stagedsync.NewDriver(stages, db, logger.New("component", "driver"))

	engineServer := engineapi.NewServer(db, driver, source, pool, logger.New("component", "engineapi"))
	rpcServer := jsonrpc.NewServer(db, agg, pool, cfg.chainID, logger.New("component", "jsonrpc"))

	engineHTTP := &http.Server{Addr: cfg.engineAddr, Handler: engineapi.NewHTTPHandler(secret, engineServer)}
	rpcHTTP := &http.Server{Addr: cfg.rpcAddr, Handler: jsonrpc.NewHTTPHandler(rpcServer)}

	errCh := make(chan error, 2)
	go func() { errCh <- engineHTTP.ListenAndServe() }()
	go func() { errCh <- rpcHTTP.ListenAndServe() }()
	logger.Info("listening", "engineapi", cfg.engineAddr, "jsonrpc", cfg.rpcAddr)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	_ = engineHTTP.Shutdown(context.Background())
	_ = rpcHTTP.Shutdown(context.Background())
	return nil
}

const datasizeMB = 1 << 20

// acquireDataDirLock takes an exclusive flock on datadir/LOCK so a second
// corexec process can't run a write-transaction driver against the same
// chaindata concurrently, the same single-writer guarantee the KV engine
// contract assumes (spec §5: "write access is serialized through the sync
// driver").
func acquireDataDirLock(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("cmd/corexec: creating datadir: %w", err)
	}
	l := flock.New(filepath.Join(dataDir, "LOCK"))
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cmd/corexec: locking datadir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("cmd/corexec: datadir %s is locked by another process", dataDir)
	}
	return l, nil
}

func recoverSender(tx *types.Transaction) (common.Address, error) {
	digest := tx.Hash()
	pub, err := crypto.RecoverPubkey(digest.Bytes(), tx.R, tx.S, tx.V)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(pub), nil
}

func loadOrCreateJWTSecret(cfg *config) ([]byte, error) {
	path := cfg.jwtSecretPath
	if path == "" {
		path = filepath.Join(cfg.dataDir, "jwt.hex")
	}
	if err := cfg.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if raw, err := afero.ReadFile(cfg.fs, path); err == nil {
		return common.DecodeHexString(strings.TrimSpace(string(raw)))
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	hexSecret := common.EncodeHexString(secret)
	if err := afero.WriteFile(cfg.fs, path, []byte(hexSecret), 0o600); err != nil {
		return nil, fmt.Errorf("cmd/corexec: writing jwt secret: %w", err)
	}
	return secret, nil
}
