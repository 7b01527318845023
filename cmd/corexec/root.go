// Package main wires the staged-sync driver, temporal state store,
// transaction pool, and the JSON-RPC/Engine API façades into a single
// process, following the teacher's turbo/cli flag-registration pattern
// (spec §B "Configuration").
package main

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// byteSizeValue must satisfy pflag.Value for cobra's PersistentFlags().Var
// call below to accept it.
var _ pflag.Value = (*byteSizeValue)(nil)

// config bundles every flag the root command registers; subcommands read
// it rather than querying cobra/pflag directly.
type config struct {
	fs afero.Fs

	dataDir      string
	logDir       string
	logFileSize  datasize.ByteSize
	stepSize     uint64
	withHistory  bool
	chainID      uint64
	mergeHeight  uint64
	rpcAddr      string
	engineAddr   string
	jwtSecretPath string
	blockGasLimit uint64
	minGasPriceWei uint64
}

func newRootCommand() *cobra.Command {
	cfg := &config{fs: afero.NewOsFs()}

	root := &cobra.Command{
		Use:   "corexec",
		Short: "minimal Erigon-style staged-sync execution client",
	}

	root.PersistentFlags().StringVar(&cfg.dataDir, "datadir", "./corexec-data", "data directory for logs and JWT secret")
	root.PersistentFlags().StringVar(&cfg.logDir, "log.dir.path", "", "rotating log file directory (defaults under datadir)")
	logSize := "64MB"
	root.PersistentFlags().Var(newByteSizeValue(logSize, &cfg.logFileSize), "log.dir.size", "max rotating log file size before rollover")
	root.PersistentFlags().Uint64Var(&cfg.chainID, "chainid", 1337, "chain id advertised over JSON-RPC")
	root.PersistentFlags().Uint64Var(&cfg.mergeHeight, "merge.height", 0, "block number at which the PoS engine takes over")
	root.PersistentFlags().Uint64Var(&cfg.stepSize, "state.stepsize", 8192, "temporal store step size, in tx numbers")
	root.PersistentFlags().BoolVar(&cfg.withHistory, "state.history", true, "keep as-of history alongside latest values")
	root.PersistentFlags().StringVar(&cfg.rpcAddr, "http.addr", "127.0.0.1:8545", "JSON-RPC listen address")
	root.PersistentFlags().StringVar(&cfg.engineAddr, "authrpc.addr", "127.0.0.1:8551", "Engine API listen address")
	root.PersistentFlags().StringVar(&cfg.jwtSecretPath, "authrpc.jwtsecret", "", "path to the 32-byte hex JWT secret (generated under datadir if empty)")
	root.PersistentFlags().Uint64Var(&cfg.blockGasLimit, "miner.gaslimit", 30_000_000, "block gas limit enforced at pool admission")
	root.PersistentFlags().Uint64Var(&cfg.minGasPriceWei, "txpool.pricelimit", 1, "minimum accepted gas price, in wei")

	root.AddCommand(newServeCommand(cfg))
	root.AddCommand(newStagesCommand(cfg))
	root.AddCommand(newTablesCommand(cfg))
	return root
}

// byteSizeValue adapts datasize.ByteSize to pflag.Value so --log.dir.size
// accepts human-readable quantities ("64MB") per spec §B.
type byteSizeValue struct{ target *datasize.ByteSize }

func newByteSizeValue(defaultVal string, target *datasize.ByteSize) *byteSizeValue {
	_ = target.UnmarshalText([]byte(defaultVal))
	return &byteSizeValue{target: target}
}

func (v *byteSizeValue) String() string   { return v.target.String() }
func (v *byteSizeValue) Type() string     { return "byteSize" }
func (v *byteSizeValue) Set(s string) error { return v.target.UnmarshalText([]byte(s)) }

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
