// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
)

// process is the deferred OS process behind a stage. It moves through
// NotStarted → Running → Exited exactly once; a launch failure leaves it
// NotStarted with err set, and every later materialization returns err.
type process struct {
	state State
	cmd   *exec.Cmd
	err   error

	stdin      *os.File      // caller end of a piped stdin
	stdinTaken bool          // stdin was handed to the caller, who closes it
	stdout     *os.File      // caller end of a piped stdout
	stderr     *bytes.Buffer // capture buffer for a piped stderr

	code    int
	waitErr error
	done    chan struct{} // closed by the reaper goroutine where one is needed
}

// start launches cmd. The child-side descriptors in closeAfterStart are
// closed whether or not the launch succeeds.
func (p *process) start(cmd *exec.Cmd, closeAfterStart []*os.File) error {
	err := cmd.Start()
	for _, f := range closeAfterStart {
		f.Close()
	}
	if err != nil {
		p.closeStdin()
		p.closeStdout()
		p.err = err
		return err
	}
	p.cmd = cmd
	p.state = Running
	return nil
}

func (p *process) pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// poll reports the exit code without blocking. ok is false until the
// process has exited and been reaped.
func (p *process) poll() (code int, ok bool) {
	switch p.state {
	case Exited:
		return p.code, true
	case Running:
		if p.exited() {
			p.reap()
			return p.code, true
		}
	}
	return 0, false
}

// reap blocks until the process exits and caches its exit code. A
// non-zero exit is not an error here; only wait failures are returned.
func (p *process) reap() error {
	if p.state != Running {
		return p.waitErr
	}
	err := p.waitCmd()
	p.state = Exited
	if p.cmd.ProcessState == nil {
		p.code = -1
	} else {
		p.code = exitCode(p.cmd.ProcessState)
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.waitErr = err
	}
	return p.waitErr
}

// drain reads what is left of a piped stdout and releases it.
func (p *process) drain() ([]byte, error) {
	if p.stdout == nil {
		return []byte{}, nil
	}
	out, err := io.ReadAll(p.stdout)
	p.closeStdout()
	return out, err
}

func (p *process) closeStdin() {
	if p.stdin != nil {
		p.stdin.Close() // the caller may have closed it already
		p.stdin = nil
	}
}

func (p *process) closeStdout() error {
	if p.stdout == nil {
		return nil
	}
	err := p.stdout.Close()
	p.stdout = nil
	return err
}

func (p *process) capturedStderr() []byte {
	if p.stderr == nil || p.state != Exited {
		return nil
	}
	return bytes.Clone(p.stderr.Bytes())
}
