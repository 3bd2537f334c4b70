// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"slices"
)

// Chain is the ordered list of stages linked stdout to stdin. Stage i
// reads the output of stage i-1. A stage belongs to exactly one chain;
// attaching two chains merges them into the upstream one.
type Chain struct {
	stages []*Stage
}

// Stages returns the stages from head to tail.
func (c *Chain) Stages() []*Stage { return slices.Clone(c.stages) }

// Len returns the number of stages.
func (c *Chain) Len() int { return len(c.stages) }

// Head returns the first stage.
func (c *Chain) Head() *Stage { return c.stages[0] }

// Tail returns the last stage.
func (c *Chain) Tail() *Stage { return c.stages[len(c.stages)-1] }

// Index returns the position of s in the chain, or -1.
func (c *Chain) Index(s *Stage) int { return slices.Index(c.stages, s) }

// String renders the whole chain as a POSIX shell command.
func (c *Chain) String() string { return c.Tail().String() }

// ExitCodes polls every stage. Stages that haven't exited report -1 and
// false in the matching ok slot.
func (c *Chain) ExitCodes() (codes []int, ok []bool) {
	codes = make([]int, len(c.stages))
	ok = make([]bool, len(c.stages))
	for i, s := range c.stages {
		codes[i], ok[i] = s.ExitCode()
		if !ok[i] {
			codes[i] = -1
		}
	}
	return codes, ok
}

func (c *Chain) splice(other *Chain) {
	for _, s := range other.stages {
		s.chain = c
	}
	c.stages = append(c.stages, other.stages...)
	other.stages = nil
}

// closeInput releases the caller end of the head's stdin pipe so the
// head sees EOF, unless the caller holds that end.
func (c *Chain) closeInput() {
	if p := c.Head().proc; !p.stdinTaken {
		p.closeStdin()
	}
}

// Step is an element of Pipe: either Args or an existing *Stage.
type Step interface {
	step()
}

// Args is an argv used as a Pipe step.
type Args []string

func (Args) step()   {}
func (*Stage) step() {}

// Pipe builds a chain from steps and returns its tail. Each step is an
// argv or a previously built stage, spliced in with its whole chain.
//
//	tail, _ := pipeline.Pipe(pipeline.Args{"echo", "-n", "foo"}, pipeline.Args{"gzip"}, pipeline.Args{"zcat"})
func Pipe(steps ...Step) (*Stage, error) {
	return PipeEnv(InheritEnv(), steps...)
}

// PipeEnv is Pipe with env applied to every Args step. Spliced stages
// keep their own policy.
func PipeEnv(env EnvPolicy, steps ...Step) (*Stage, error) {
	if len(steps) == 0 {
		return nil, &ConfigError{Msg: "pipe needs at least one command", Err: ErrEmptyCommand}
	}

	// Build every stage first so a bad argv leaves nothing linked.
	stages := make([]*Stage, len(steps))
	for i, step := range steps {
		switch st := step.(type) {
		case Args:
			s, err := Run(st, WithEnv(env))
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			stages[i] = s
		case *Stage:
			if st == nil {
				return nil, configErrorf("step %d: nil stage", i)
			}
			stages[i] = st
		default:
			return nil, configErrorf("step %d: unsupported step %T", i, step)
		}
	}

	// Check every link against the chain as it would be after the earlier
	// links, then splice. A failure leaves every step's chain untouched.
	merged := []*Chain{stages[0].chain}
	for i := 1; i < len(stages); i++ {
		prev, next := stages[i-1], stages[i]
		if slices.Contains(merged, next.chain) {
			return nil, fmt.Errorf("step %d: %w", i, &AttachError{From: prev, To: next, Msg: "both stages are in the same chain"})
		}
		if err := prev.checkAttach(next); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		merged = append(merged, next.chain)
	}
	for i := 1; i < len(stages); i++ {
		stages[i-1].link(stages[i])
	}
	return stages[len(stages)-1], nil
}
