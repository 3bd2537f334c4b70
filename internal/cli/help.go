package cli

import (
	"fmt"
	"io"

	"github.com/marcelocantos/spm/internal/pipeline"
)

// RunHelp shows general usage.
func RunHelp(w io.Writer) int {
	fmt.Fprintln(w, "spm: lazy process pipelines")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "usage:")
	fmt.Fprintf(w, "  spm [flags] <cmd> [args...] [%s cmd ...]   run a pipeline\n", pipeline.OpPipe)
	fmt.Fprintln(w, "  spm --print [flags] <cmd> ...            show the equivalent shell command")
	fmt.Fprintln(w, "  spm --script <file.star>                 run a pipeline script")
	fmt.Fprintln(w, "  spm --mcp                                serve pipeline tools over MCP (stdio)")
	fmt.Fprintln(w, "  spm --audit verify|show [id]|tail [n]    audit log operations")
	fmt.Fprintln(w, "  spm --help                               show help")
	fmt.Fprintln(w, "  spm --version                            show version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	fmt.Fprintln(w, "  --env NAME=value   set a variable for every stage (repeatable)")
	fmt.Fprintln(w, "  --clear-env        start every stage from an empty environment")
	fmt.Fprintln(w, "  NAME=value         before a command, set a variable for that stage only")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "pipeline operators:")
	fmt.Fprintf(w, "  %s  pipe (stdout → stdin)\n", pipeline.OpPipe)
	fmt.Fprintf(w, "  %s  redirect stdout to file\n", pipeline.OpRedirectOut)
	fmt.Fprintf(w, "  %s  redirect stdin from file\n", pipeline.OpRedirectIn)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "compound operators:")
	fmt.Fprintf(w, "  %s  and-then (run next if previous succeeded)\n", pipeline.OpAndThen)
	fmt.Fprintf(w, "  %s   or-else (run next if previous failed)\n", pipeline.OpOrElse)
	fmt.Fprintf(w, "  %s   sequential (run next regardless)\n", pipeline.OpSequential)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "exit status: that of the failing stage nearest the end of the pipeline")
	return 0
}
