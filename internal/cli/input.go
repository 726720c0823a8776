package cli

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/pkg/errors"
)

const (
	ExitSuccess           = 0
	ExitRunFailure        = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// Invocation is the fully canonicalized, deterministic description of one CLI
// run.
//
// All relative paths are resolved under WorkDir. WorkDir is required and must
// be absolute, which keeps the invocation independent of the process current
// working directory.
type Invocation struct {
	WorkDir     string
	DatasetPath string
	PlanPath    string
	TracePath   string
	MaxPhases   int
	Workers     int
	DebugPlan   bool
	Verbose     bool
}

// TraceEnabled reports whether a trace artifact was requested.
func (inv Invocation) TraceEnabled() bool { return inv.TracePath != "" }

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: errors.Errorf(format, args...).Error()}
}

// ParseInvocation parses CLI flags into a canonical Invocation. Parsing never
// terminates the process and never prints; errors are returned.
func ParseInvocation(args []string) (Invocation, error) {
	app := kingpin.New("batchmux", "Run a batched directory query plan.")
	app.Terminate(nil)
	app.UsageWriter(io.Discard)
	app.ErrorWriter(io.Discard)

	var (
		workDir     = app.Flag("workdir", "Absolute working directory. Required.").Required().String()
		datasetPath = app.Flag("dataset", "Directory dataset file (YAML). Required.").Required().String()
		planPath    = app.Flag("plan", "Query plan file (YAML). Required.").Required().String()
		tracePath   = app.Flag("trace", "Trace output path (optional).").String()
		maxPhases   = app.Flag("max-phases", "Abort runs exceeding this many phases. 0 means unlimited.").Default("0").Int()
		workers     = app.Flag("workers", "Concurrency of the built-in thunk handler.").Default("1").Int()
		debugPlan   = app.Flag("debug-plan", "Print the first-phase batches instead of executing.").Bool()
		verbose     = app.Flag("verbose", "Log scheduling decisions to stderr.").Short('v').Bool()
	)

	if _, err := app.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}

	wd := filepath.Clean(*workDir)
	if !filepath.IsAbs(wd) {
		return Invocation{}, invalidInvocationf("--workdir must be an absolute path (got %q)", *workDir)
	}
	if *maxPhases < 0 {
		return Invocation{}, invalidInvocationf("--max-phases must be >= 0 (got %d)", *maxPhases)
	}
	if *workers < 1 {
		return Invocation{}, invalidInvocationf("--workers must be >= 1 (got %d)", *workers)
	}

	inv := Invocation{
		WorkDir:   wd,
		MaxPhases: *maxPhases,
		Workers:   *workers,
		DebugPlan: *debugPlan,
		Verbose:   *verbose,
	}

	var err error
	if inv.DatasetPath, err = resolveUnderWorkDir(wd, *datasetPath); err != nil {
		return Invocation{}, err
	}
	if inv.PlanPath, err = resolveUnderWorkDir(wd, *planPath); err != nil {
		return Invocation{}, err
	}
	if strings.TrimSpace(*tracePath) != "" {
		if inv.TracePath, err = resolveUnderWorkDir(wd, *tracePath); err != nil {
			return Invocation{}, err
		}
	}
	return inv, nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	// WorkDir is absolute, so Join does not consult the process CWD.
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

// ExitCodeFor extracts a semantic exit code from an error. Unknown errors map
// to ExitInternalError; nil maps to ExitSuccess.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	return ExitInternalError
}
