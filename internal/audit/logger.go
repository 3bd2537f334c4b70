package audit

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcelocantos/spm/internal/pipeline"
)

const genesisInput = "spm-genesis"

// Logger is an append-only, hash-chained audit log writer. Every entry it
// writes carries the same run id. A nil *Logger discards entries.
type Logger struct {
	mu       sync.Mutex
	path     string
	source   Source
	runID    string
	seq      uint64
	prevHash string
}

// NewLogger opens or creates an audit log at the given path.
// It reads the last entry to resume the hash chain.
func NewLogger(path string, source Source) (*Logger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	l := &Logger{
		path:     path,
		source:   source,
		runID:    uuid.NewString(),
		prevHash: genesisHash(),
	}

	// Read existing log to find last entry.
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		lines := splitLines(data)
		if len(lines) > 0 {
			var last Entry
			if err := json.Unmarshal(lines[len(lines)-1], &last); err == nil {
				l.seq = last.Seq
				l.prevHash = last.Hash
			}
		}
	}

	return l, nil
}

// Log writes an audit entry to the log file.
func (l *Logger) Log(run Run) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cwd, _ := os.Getwd()
	l.seq++
	entry := Entry{
		Seq:         l.seq,
		Time:        time.Now().UTC(),
		PrevHash:    l.prevHash,
		RunID:       l.runID,
		Source:      l.source,
		Command:     run.Command,
		Stages:      run.Stages,
		ExitCodes:   run.ExitCodes,
		FailedStage: run.FailedStage,
		ExitCode:    run.ExitCode,
		Duration:    float64(run.Duration.Microseconds()) / 1000.0,
		Cwd:         cwd,
		ClearedEnv:  run.ClearedEnv,
	}
	if run.Err != nil {
		entry.Error = run.Err.Error()
	}

	// Compute hash with Hash field empty.
	entry.Hash = computeHash(entry)

	data, err := json.Marshal(entry)
	if err != nil {
		l.seq--
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		l.seq--
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		l.seq--
		return fmt.Errorf("write audit entry: %w", err)
	}
	l.prevHash = entry.Hash
	return nil
}

// LogChain records a chain that has been waited on. err is what Wait
// returned; c may be nil when nothing could be built.
func (l *Logger) LogChain(c *pipeline.Chain, err error, duration time.Duration) error {
	if l == nil {
		return nil
	}
	return l.Log(FromChain(c, err, duration))
}

// FromChain summarizes a finished chain.
func FromChain(c *pipeline.Chain, err error, duration time.Duration) Run {
	run := Run{FailedStage: -1, Err: err, Duration: duration}
	if c != nil && c.Len() > 0 {
		run.Command = c.String()
		for _, s := range c.Stages() {
			run.Stages = append(run.Stages, s.Args()[0])
		}
		run.ExitCodes, _ = c.ExitCodes()
		run.ClearedEnv = c.Head().Env().IsCleared()
	}

	var pe *pipeline.ProcessError
	switch {
	case err == nil:
	case errors.As(err, &pe):
		run.ExitCode = pe.Code
		if c != nil {
			run.FailedStage = c.Index(pe.Stage)
		}
	default:
		run.ExitCode = -1
	}
	return run
}

// Path returns the audit log file path.
func (l *Logger) Path() string {
	return l.path
}

// RunID returns the id stamped on every entry this logger writes.
func (l *Logger) RunID() string {
	return l.runID
}

func genesisHash() string {
	h := sha256.Sum256([]byte(genesisInput))
	return fmt.Sprintf("%x", h)
}

func computeHash(e Entry) string {
	e.Hash = "" // hash is computed with this field empty
	data, _ := json.Marshal(e)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
