package main

import (
	"context"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/kv/memdb"
	"github.com/corexec/corexec/eth/stagedsync"
)

// newTablesCommand prints the chaindata table schema (spec §C.9 "corexec
// tables ... debug subcommand"). memdb is process-local with no on-disk
// file, so this renders the static schema rather than attaching to a
// separately running corexec serve instance's live data.
func newTablesCommand(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "list the chaindata table schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Table", "Flags"})
			tableCfg := kv.ChaindataTablesCfg()
			for _, name := range kv.ChaindataTables {
				flags := "default"
				if tableCfg[name].Flags&kv.DupSort != 0 {
					flags = "dupsort"
				}
				t.AppendRow(table.Row{name, flags})
			}
			t.Render()
			return nil
		},
	}
}

// newStagesCommand seeds a fresh in-memory chaindata instance at genesis
// and prints each stage's progress, the same SyncStageProgress table the
// driver reads (spec §A.6). Against a genuinely running node this command
// would attach to its datadir; memdb has no on-disk form to attach to, so
// this is a schema/format demonstration rather than a live attach (see
// DESIGN.md).
func newStagesCommand(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "print staged-sync progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			db := memdb.New(kv.ChaindataTables)
			defer db.Close()
			if err := seedGenesis(ctx, db, cfg.blockGasLimit); err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Stage", "Progress"})
			names := []string{"Headers", "BlockHashes", "Bodies", "Senders", "Execution", "TxLookup", "Finish"}
			return db.View(ctx, func(tx kv.Tx) error {
				for _, name := range names {
					progress, err := stagedsync.Progress(tx, name)
					if err != nil {
						return err
					}
					t.AppendRow(table.Row{name, progress})
				}
				t.Render()
				return nil
			})
		},
	}
}
