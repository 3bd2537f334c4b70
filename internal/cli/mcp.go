package cli

import (
	"fmt"

	"github.com/marcelocantos/spm/internal/mcpserver"
)

// RunMCP serves the pipeline tools over stdio until the client goes away.
func RunMCP(rt *Runtime, version string) int {
	s := mcpserver.New(version,
		mcpserver.WithEnv(rt.Env),
		mcpserver.WithLogger(rt.Log),
		mcpserver.WithAudit(rt.Audit),
	)
	if err := s.ServeStdio(); err != nil {
		fmt.Fprintf(rt.Stderr, "spm mcp: %v\n", err)
		return 1
	}
	return 0
}
