package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"batchmux"
	"batchmux/trace"
)

// Result carries the semantic exit code of one CLI execution plus the result
// tree on success.
type Result struct {
	ExitCode int
	Tree     batchmux.Tree
}

// debugBatchView is the JSON shape of one pending batch in --debug-plan
// output.
type debugBatchView struct {
	Handler     string `json:"handler"`
	BatchKey    string `json:"batchKey"`
	Fingerprint string `json:"fingerprint"`
	Tasks       int    `json:"tasks"`
}

// Execute maps a canonical Invocation to an engine run.
//
// Responsibilities:
//   - Load and validate the dataset and plan before touching the engine.
//   - Write the trace artifact after execution, run failure included.
//   - Translate outcomes to semantic exit codes.
func Execute(ctx context.Context, inv Invocation, stdout, stderr io.Writer) (res Result, execErr error) {
	res.ExitCode = ExitInternalError
	defer func() {
		if r := recover(); r != nil {
			res = Result{ExitCode: ExitInternalError}
			execErr = errors.Errorf("panic: %v", r)
		}
	}()

	logger := log.NewNopLogger()
	if inv.Verbose {
		logger = level.NewFilter(log.NewLogfmtLogger(log.NewSyncWriter(stderr)), level.AllowDebug())
	}

	ds, err := LoadDataset(inv.DatasetPath)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	plan, err := LoadPlan(inv.PlanPath)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	m, err := plan.BuildMulti()
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}

	opts := []batchmux.Option{
		batchmux.WithRegistry(NewDirectoryRegistry(ds, logger, inv.Workers)),
		batchmux.WithLogger(logger),
		batchmux.WithMaxPhases(inv.MaxPhases),
	}
	var col *trace.Collector
	if inv.TraceEnabled() {
		// The run ID is derived from the plan bytes so identical plans
		// produce byte-identical trace artifacts.
		col = trace.NewCollector(fmt.Sprintf("plan-%016x", plan.Fingerprint()))
		opts = append(opts, batchmux.WithRecorder(col))
	}

	engine, err := batchmux.NewEngine(opts...)
	if err != nil {
		res.ExitCode = ExitInternalError
		return res, err
	}

	if inv.DebugPlan {
		batches, err := engine.DebugBatches(m)
		if err != nil {
			res.ExitCode = ExitRunFailure
			return res, err
		}
		views := make([]debugBatchView, 0, len(batches))
		for _, b := range batches {
			views = append(views, debugBatchView{
				Handler:     b.Handler,
				BatchKey:    b.BatchKey,
				Fingerprint: fmt.Sprintf("%016x", b.Fingerprint),
				Tasks:       len(b.Tasks),
			})
		}
		if err := printJSON(stdout, views); err != nil {
			res.ExitCode = ExitInternalError
			return res, err
		}
		res.ExitCode = ExitSuccess
		return res, nil
	}

	if col != nil {
		// The trace artifact is written even when the run fails; whatever
		// was recorded up to the failure is still a valid trace.
		defer func() {
			if werr := writeTrace(inv.TracePath, col); werr != nil && execErr == nil {
				res = Result{ExitCode: ExitInternalError}
				execErr = werr
			}
		}()
	}

	tree, err := engine.ExecuteMulti(ctx, m)
	if err != nil {
		res.ExitCode = ExitRunFailure
		return res, err
	}
	if err := printJSON(stdout, tree); err != nil {
		res.ExitCode = ExitInternalError
		return res, err
	}
	res.Tree = tree
	res.ExitCode = ExitSuccess
	return res, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding output")
	}
	if _, err := fmt.Fprintln(w, string(b)); err != nil {
		return errors.Wrap(err, "writing output")
	}
	return nil
}

func writeTrace(path string, col *trace.Collector) error {
	b, err := col.Trace().MarshalCanonicalJSON()
	if err != nil {
		return errors.Wrap(err, "encoding trace")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating trace dir")
	}
	return writeFileAtomic(path, b, 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
