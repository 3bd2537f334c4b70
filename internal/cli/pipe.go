package cli

import (
	"fmt"
	"strings"

	"github.com/marcelocantos/spm/internal/pipeline"
)

var shellOps = map[pipeline.Operator]string{
	pipeline.Operator(pipeline.OpAndThen):    "&&",
	pipeline.Operator(pipeline.OpOrElse):     "||",
	pipeline.Operator(pipeline.OpSequential): ";",
}

// printCommand writes the POSIX shell equivalent of cmd without running
// anything.
func printCommand(rt *Runtime, cmd *pipeline.Command, env pipeline.EnvPolicy) int {
	line, err := renderCommand(cmd, env)
	if err != nil {
		fmt.Fprintf(rt.Stderr, "spm: %v\n", err)
		return 2
	}
	fmt.Fprintln(rt.Stdout, line)
	return 0
}

func renderCommand(cmd *pipeline.Command, env pipeline.EnvPolicy) (string, error) {
	var b strings.Builder
	for i, step := range cmd.Steps {
		s, err := renderPipeline(step.Pipeline, env)
		if err != nil {
			return "", fmt.Errorf("step %d: %w", i+1, err)
		}
		b.WriteString(s)
		if op, ok := shellOps[step.Op]; ok {
			b.WriteString(" " + op + " ")
		}
	}
	return b.String(), nil
}

// renderPipeline builds the lazy chain without its redirects and appends
// them shell-style, so nothing is opened or created.
func renderPipeline(p *pipeline.Pipeline, env pipeline.EnvPolicy) (string, error) {
	bare := &pipeline.Pipeline{Segments: p.Segments}
	tail, closer, err := bare.Build(env)
	if err != nil {
		return "", err
	}
	closer.Close()

	// The head's rendering is a prefix of the chain's.
	head := tail.Chain().Head().String()
	s := head
	if p.RedirectIn != "" {
		s += " < " + pipeline.Quote(p.RedirectIn)
	}
	s += strings.TrimPrefix(tail.String(), head)
	if p.RedirectOut != "" {
		s += " > " + pipeline.Quote(p.RedirectOut)
	}
	return s, nil
}
