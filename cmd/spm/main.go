package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/marcelocantos/spm/internal/audit"
	"github.com/marcelocantos/spm/internal/cli"
	"github.com/marcelocantos/spm/internal/config"
	"github.com/marcelocantos/spm/internal/logging"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		cli.RunHelp(os.Stderr)
		return 2
	}

	switch os.Args[1] {
	case "--help", "-h":
		return cli.RunHelp(os.Stdout)
	case "--version":
		fmt.Printf("spm %s\n", version)
		return 0
	}

	// Load config.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "spm: config: %v\n", err)
		return 2
	}

	logger, err := logging.NewOrNop(cfg.Logging())
	if err != nil {
		fmt.Fprintf(os.Stderr, "spm: log: %v\n", err)
	}
	defer logger.Sync()

	if os.Args[1] == "--audit" {
		return cli.RunAudit(os.Stdout, cfg.Audit.Path, os.Args[2:])
	}

	rt := &cli.Runtime{
		Env:    cfg.EnvPolicy(),
		Log:    logger,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	openAudit := func(source audit.Source) {
		if !cfg.Audit.Enabled {
			return
		}
		l, err := audit.NewLogger(cfg.Audit.Path, source)
		if err != nil {
			// Continue without audit logging.
			logger.Warn("audit log unavailable", zap.Error(err))
			return
		}
		rt.Audit = l
	}

	switch os.Args[1] {
	case "--script":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "spm: --script requires a file")
			return 2
		}
		openAudit(audit.SourceScript)
		return cli.RunScript(rt, os.Args[2])
	case "--mcp":
		openAudit(audit.SourceMCP)
		return cli.RunMCP(rt, version)
	default:
		// Everything else is a pipeline, possibly with --env, --clear-env
		// or --print in front.
		openAudit(audit.SourceCLI)
		return cli.RunPipe(rt, os.Args[1:])
	}
}
