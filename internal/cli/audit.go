package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/marcelocantos/spm/internal/audit"
)

// RunAudit handles the spm --audit subcommand.
func RunAudit(w io.Writer, logPath string, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(w, "usage: spm --audit <verify|show [run-id]|tail [n]>")
		return 1
	}

	switch args[0] {
	case "verify":
		if err := audit.Verify(logPath); err != nil {
			fmt.Fprintf(w, "audit verification FAILED: %v\n", err)
			return 1
		}
		fmt.Fprintln(w, "audit log integrity verified")
		return 0

	case "show":
		runID := ""
		if len(args) > 1 {
			runID = args[1]
		}
		entries, err := audit.RunEntries(logPath, runID)
		if err != nil {
			fmt.Fprintf(w, "spm audit: %v\n", err)
			return 1
		}
		if len(entries) == 0 {
			fmt.Fprintln(w, "no audit entries")
			return 0
		}
		for _, e := range entries {
			data, _ := json.MarshalIndent(e, "", "  ")
			fmt.Fprintf(w, "%s\n", data)
		}
		return 0

	case "tail":
		n := 20
		if len(args) > 1 {
			v, err := strconv.Atoi(args[1])
			if err != nil || v <= 0 {
				fmt.Fprintf(w, "spm audit: invalid count %q\n", args[1])
				return 1
			}
			n = v
		}
		entries, err := audit.Tail(logPath, n)
		if err != nil {
			fmt.Fprintf(w, "spm audit: %v\n", err)
			return 1
		}
		if len(entries) == 0 {
			fmt.Fprintln(w, "no audit entries")
			return 0
		}
		for _, e := range entries {
			fmt.Fprintln(w, summary(e))
		}
		return 0

	default:
		fmt.Fprintf(w, "spm audit: unknown subcommand %q\n", args[0])
		return 1
	}
}

// summary renders an entry as one line: seq, time, source, exit code, command.
func summary(e audit.Entry) string {
	status := "ok"
	if e.ExitCode != 0 {
		status = "exit " + strconv.Itoa(e.ExitCode)
		if e.FailedStage >= 0 && e.FailedStage < len(e.Stages) {
			status += " (" + e.Stages[e.FailedStage] + ")"
		}
	}
	fields := []string{
		strconv.FormatUint(e.Seq, 10),
		e.Time.Format("2006-01-02T15:04:05Z"),
		string(e.Source),
		status,
		e.Command,
	}
	return strings.Join(fields, "  ")
}
