package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/marcelocantos/spm/internal/audit"
	"github.com/marcelocantos/spm/internal/pipeline"
)

// Runtime carries what every front end needs: the base environment
// policy, loggers and the process's own streams.
type Runtime struct {
	Env    pipeline.EnvPolicy
	Log    *zap.Logger
	Audit  *audit.Logger
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// pipeFlags are the options accepted before a pipeline.
type pipeFlags struct {
	vars  map[string]string
	clear bool
	print bool
}

// parsePipeFlags peels --env K=V, --clear-env and --print off the front
// of args. "--" ends the flags.
func parsePipeFlags(args []string) (pipeFlags, []string, error) {
	var f pipeFlags
	for len(args) > 0 {
		switch arg := args[0]; {
		case arg == "--":
			return f, args[1:], nil
		case arg == "--clear-env":
			f.clear = true
		case arg == "--print":
			f.print = true
		case arg == "--env" || strings.HasPrefix(arg, "--env="):
			kv, ok := strings.CutPrefix(arg, "--env=")
			if !ok {
				if len(args) < 2 {
					return f, nil, errors.New("--env requires NAME=value")
				}
				kv, args = args[1], args[1:]
			}
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return f, nil, fmt.Errorf("--env %q: expected NAME=value", kv)
			}
			if f.vars == nil {
				f.vars = make(map[string]string)
			}
			f.vars[k] = v
		default:
			return f, args, nil
		}
		args = args[1:]
	}
	return f, args, nil
}

// policy applies the flags on top of base.
func (f pipeFlags) policy(base pipeline.EnvPolicy) pipeline.EnvPolicy {
	p := base
	if f.clear {
		p = pipeline.ClearedEnv(nil)
	}
	for k, v := range f.vars {
		p = p.With(k, v)
	}
	return p
}

// RunPipe executes a compound command: spm [flags] <cmd> [args] [¦ cmd ...]
func RunPipe(rt *Runtime, args []string) int {
	flags, args, err := parsePipeFlags(args)
	if err != nil {
		fmt.Fprintf(rt.Stderr, "spm: %v\n", err)
		return 2
	}
	if len(args) == 0 {
		fmt.Fprintln(rt.Stderr, "spm: empty pipeline")
		return 2
	}

	cmd, err := pipeline.ParseCommand(args)
	if err != nil {
		fmt.Fprintf(rt.Stderr, "spm: %v\n", err)
		return 2
	}

	env := flags.policy(rt.Env)
	if flags.print {
		return printCommand(rt, cmd, env)
	}

	results, err := pipeline.ExecuteCommand(cmd, env, rt.Stdin, rt.Stdout, rt.Stderr, pipeline.WithLogger(rt.Log))
	for _, res := range results {
		if res.Skipped {
			continue
		}
		if aerr := rt.Audit.LogChain(res.Chain, res.Err, res.Duration); aerr != nil {
			rt.Log.Warn("audit write failed", zap.Error(aerr))
		}
	}

	return resolveError(rt.Stderr, err)
}

// resolveError extracts an exit code from an error. For a ProcessError
// (a stage exited non-zero), the code is propagated silently; the
// stage's own stderr output is sufficient. A stage killed by signal n
// exits 128+n like a shell. For other errors, spm reports them on stderr.
func resolveError(stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var pe *pipeline.ProcessError
	if errors.As(err, &pe) {
		if pe.Code < 0 {
			return 128 - pe.Code
		}
		return pe.Code
	}
	fmt.Fprintf(stderr, "spm: %v\n", err)
	return 2
}
