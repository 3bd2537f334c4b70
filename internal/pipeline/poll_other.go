// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package pipeline

import "os"

// Without waitid(WNOWAIT) the only way to observe an exit is to reap, so
// a single goroutine owns exec.Cmd.Wait and poll peeks at its result.
func (p *process) reaper() chan struct{} {
	if p.done == nil {
		p.done = make(chan struct{})
		go func() {
			p.waitErr = p.cmd.Wait()
			close(p.done)
		}()
	}
	return p.done
}

func (p *process) exited() bool {
	select {
	case <-p.reaper():
		return true
	default:
		return false
	}
}

func (p *process) waitCmd() error {
	<-p.reaper()
	err := p.waitErr
	p.waitErr = nil
	return err
}

func exitCode(ps *os.ProcessState) int {
	return ps.ExitCode()
}
