// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"go.uber.org/zap"
)

type waitResult struct {
	stdout []byte
	stderr []byte
	err    error
}

// Wait spawns whatever hasn't been spawned, collects the tail's output
// and reaps every stage. It returns the tail's stdout (nil unless piped)
// and stderr (nil unless piped).
//
// If any stage exited non-zero, the error is a *ProcessError naming the
// first failing stage found scanning from the tail toward the head. The
// outcome is cached: calling Wait again returns the same values.
func (c *Chain) Wait() (stdout, stderr []byte, err error) {
	tail := c.Tail()
	if r := tail.result; r != nil {
		return r.stdout, r.stderr, r.err
	}

	// Spawning the tail spawns every upstream stage first.
	if err := tail.materialize(); err != nil {
		c.abandon()
		return nil, nil, err
	}

	// Nobody reads intermediate outputs but their downstream stage. Drop
	// any caller-side copy so a finished writer delivers EOF.
	for i := len(c.stages) - 2; i >= 0; i-- {
		c.stages[i].proc.closeStdout()
	}
	c.closeInput()

	stdout, stderr, err = tail.communicate()

	for i := len(c.stages) - 2; i >= 0; i-- {
		if reapErr := c.stages[i].proc.reap(); reapErr != nil && err == nil {
			err = reapErr
		}
	}

	if err == nil {
		for i := len(c.stages) - 1; i >= 0; i-- {
			s := c.stages[i]
			if code, _ := s.proc.poll(); code != 0 {
				err = &ProcessError{Code: code, Stage: s, Stdout: stdout, Stderr: stderr}
				break
			}
		}
	}

	for i, s := range c.stages {
		code, _ := s.proc.poll()
		s.log.Debug("exited",
			zap.Int("stage", i),
			zap.Strings("argv", s.argv),
			zap.Int("pid", s.proc.pid()),
			zap.Int("exit_code", code))
	}
	codes, _ := c.ExitCodes()
	tail.log.Debug("chain finished",
		zap.String("command", c.String()),
		zap.Ints("exit_codes", codes),
		zap.Error(err))

	tail.result = &waitResult{stdout: stdout, stderr: stderr, err: err}
	return stdout, stderr, err
}

// communicate drains the stage's piped stdout, reaps it and returns what
// it wrote. Streams that aren't piped come back nil.
func (s *Stage) communicate() (stdout, stderr []byte, err error) {
	if s.stdout.kind == RoutePipe {
		stdout, err = s.proc.drain()
	}
	if reapErr := s.proc.reap(); reapErr != nil && err == nil {
		err = reapErr
	}
	if s.stderr.kind == RoutePipe {
		stderr = s.proc.capturedStderr()
		if stderr == nil {
			stderr = []byte{}
		}
	}
	return stdout, stderr, err
}

// abandon unwinds a chain whose spawn failed halfway: it releases every
// caller-side pipe end, including a handed-out stdin, and reaps the
// stages that did start.
func (c *Chain) abandon() {
	c.Head().proc.closeStdin()
	for _, s := range c.stages {
		s.proc.closeStdout()
	}
	for _, s := range c.stages {
		if s.proc.state == Running {
			s.proc.reap()
		}
	}
}
