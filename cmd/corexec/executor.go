package main

import (
	"errors"

	"github.com/corexec/corexec/core/state"
	"github.com/corexec/corexec/core/types"
)

// ErrEVMNotImplemented mirrors turbo/jsonrpc.ErrEVMNotImplemented: EVM
// internal design is out of scope (spec §A.1, EVM is an external
// collaborator), so the Execution stage's per-tx executor has nothing real
// to call. Every transaction reverts via ExecutionStage's existing
// snapshot/continue path rather than failing the stage outright.
var ErrEVMNotImplemented = errors.New("cmd/corexec: EVM not wired, transaction not executed")

func stubExecutor(_ *state.IntraBlockState, _ *types.Header, _ *types.Transaction) error {
	return ErrEVMNotImplemented
}
