package audit

import (
	"encoding/json"
	"fmt"
	"os"
)

// Verify reads the audit log and checks the hash chain integrity.
// Returns nil if the chain is valid, or an error describing the first violation.
func Verify(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	expectedPrev := genesisHash()
	var prevSeq uint64

	for i, line := range splitLines(data) {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("line %d: invalid JSON: %w", i+1, err)
		}

		if entry.Seq != prevSeq+1 {
			return fmt.Errorf("line %d: sequence gap: expected %d, got %d", i+1, prevSeq+1, entry.Seq)
		}
		if entry.PrevHash != expectedPrev {
			return fmt.Errorf("line %d: prev_hash mismatch: expected %s, got %s", i+1, short(expectedPrev), short(entry.PrevHash))
		}
		if computed := computeHash(entry); entry.Hash != computed {
			return fmt.Errorf("line %d: hash mismatch: expected %s, got %s", i+1, short(computed), short(entry.Hash))
		}

		expectedPrev = entry.Hash
		prevSeq = entry.Seq
	}

	return nil
}

// Tail returns the last n entries from the audit log.
func Tail(path string, n int) ([]Entry, error) {
	entries, err := read(path)
	if err != nil {
		return nil, err
	}
	if n < len(entries) {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// RunEntries returns every entry written under runID. An empty runID
// selects the most recent run.
func RunEntries(path, runID string) ([]Entry, error) {
	entries, err := read(path)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		if len(entries) == 0 {
			return nil, nil
		}
		runID = entries[len(entries)-1].RunID
	}
	var out []Entry
	for _, e := range entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

// read parses every well-formed line; malformed lines are Verify's job.
func read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	var entries []Entry
	for _, line := range splitLines(data) {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func short(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "..."
}
