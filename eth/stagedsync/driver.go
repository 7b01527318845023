package stagedsync

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/corexec/corexec/erigon-lib/kv"
	"github.com/corexec/corexec/erigon-lib/log"
)

// Driver runs the ordered stage list to a target head, retrying transient
// stage errors with bounded backoff and unwinding on reorg (spec §A.4.2
// "Control loop").
type Driver struct {
	Stages []Stage
	DB     kv.RwDB
	Logger log.Logger

	// NewBackoff constructs the retry policy; overridable in tests so
	// retries don't sleep real wall-clock time.
	NewBackoff func() backoff.BackOff
}

func NewDriver(stages []Stage, db kv.RwDB, logger log.Logger) *Driver {
	return &Driver{
		Stages: stages,
		DB:     db,
		Logger: logger,
		NewBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

// RunToHead implements the control loop: while any stage's progress is
// below target, runs the earliest-lagging stage forward. An error from a
// stage leaves its progress unchanged; the driver logs, backs off, and
// retries that stage before moving on (spec §A.4.2 "Failure semantics").
func (d *Driver) RunToHead(sc *Context, target uint64) error {
	for {
		tx, err := d.DB.BeginRw(sc.Ctx)
		if err != nil {
			return err
		}
		sc.Tx = tx

		stage, progress, done, err := d.earliestLagging(tx, target)
		if err != nil {
			tx.Rollback()
			return err
		}
		if done {
			tx.Rollback()
			return nil
		}

		if sc.cancelled() {
			tx.Rollback()
			return nil
		}

		err = d.runStageWithRetry(sc, stage, progress, target)
		if err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
}

func (d *Driver) earliestLagging(tx kv.Tx, target uint64) (Stage, uint64, bool, error) {
	var (
		best       Stage
		bestProg   uint64 = target + 1
		foundLag          = false
	)
	for _, st := range d.Stages {
		prog, err := Progress(tx, st.Name)
		if err != nil {
			return Stage{}, 0, false, err
		}
		if prog < target && prog < bestProg {
			best, bestProg, foundLag = st, prog, true
		}
	}
	return best, bestProg, !foundLag, nil
}

func (d *Driver) runStageWithRetry(sc *Context, stage Stage, from, to uint64) error {
	logger := d.Logger.New("stage", stage.Name)
	op := func() error {
		if sc.cancelled() {
			return backoff.Permanent(nil)
		}
		if err := stage.Execute(sc, from, to); err != nil {
			logger.Warn("stage execute failed, retrying", "from", from, "to", to, "err", err)
			return err
		}
		return SetProgress(sc.Tx, stage.Name, to)
	}
	return backoff.Retry(op, d.NewBackoff())
}

// Unwind runs every stage's unwind in reverse pipeline order,
// smallest-progress-first down to the common ancestor (spec §A.4.2: "driver
// invokes unwind in reverse order, smallest-progress-first, down to common
// ancestor").
func (d *Driver) Unwind(sc *Context, to uint64) error {
	for i := len(d.Stages) - 1; i >= 0; i-- {
		st := d.Stages[i]
		if sc.cancelled() {
			return nil
		}
		if err := st.Unwind(sc, to); err != nil {
			return err
		}
		if err := SetProgress(sc.Tx, st.Name, to); err != nil {
			return err
		}
	}
	return nil
}
