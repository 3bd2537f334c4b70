// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package mcpserver exposes pipelines as MCP tools over stdio.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/marcelocantos/spm/internal/audit"
	"github.com/marcelocantos/spm/internal/pipeline"
)

// Server wraps an MCP server with the pipeline tools registered.
type Server struct {
	mcp   *server.MCPServer
	env   pipeline.EnvPolicy
	log   *zap.Logger
	audit *audit.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithEnv sets the base policy for every tool call.
func WithEnv(p pipeline.EnvPolicy) Option { return func(s *Server) { s.env = p } }

// WithLogger sets the logger for tool calls and stages.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAudit records every pipeline run through the server.
func WithAudit(l *audit.Logger) Option { return func(s *Server) { s.audit = l } }

// RunResult is the JSON body returned by run_pipeline.
type RunResult struct {
	Command     string `json:"command"`
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	ExitCode    int    `json:"exit_code"`
	ExitCodes   []int  `json:"exit_codes"`
	FailedStage int    `json:"failed_stage"` // -1 if every stage succeeded
}

// New creates a server with the run_pipeline and render_pipeline tools.
func New(version string, opts ...Option) *Server {
	s := &Server{log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.mcp = server.NewMCPServer("spm", version, server.WithToolCapabilities(false))

	commandOpts := []mcp.PropertyOption{
		mcp.Required(),
		mcp.Description("Stages of the pipeline, head first. Each stage is an argv array; stage i reads the output of stage i-1."),
		mcp.Items(map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		}),
	}
	envOpts := []mcp.PropertyOption{
		mcp.Description("Variables set for every stage, as an object of strings."),
	}
	clearOpts := []mcp.PropertyOption{
		mcp.Description("Start every stage from an empty environment instead of the server's."),
	}

	s.mcp.AddTool(mcp.NewTool("run_pipeline",
		mcp.WithDescription("Run a pipeline of commands connected stdout to stdin, without a shell. Returns the last stage's stdout, every stage's stderr and the exit codes as JSON."),
		mcp.WithArray("commands", commandOpts...),
		mcp.WithString("stdin", mcp.Description("Text fed to the first stage.")),
		mcp.WithObject("env", envOpts...),
		mcp.WithBoolean("clear_env", clearOpts...),
	), s.handleRun)

	s.mcp.AddTool(mcp.NewTool("render_pipeline",
		mcp.WithDescription("Render a pipeline as the equivalent POSIX shell command without running it."),
		mcp.WithArray("commands", commandOpts...),
		mcp.WithObject("env", envOpts...),
		mcp.WithBoolean("clear_env", clearOpts...),
	), s.handleRender)

	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleRun(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, env, err := s.parseRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader(req.GetString("stdin", ""))
	start := time.Now()
	chain, err := pipeline.Execute(p, env, stdin, &stdout, &stderr, pipeline.WithLogger(s.log))
	if aerr := s.audit.LogChain(chain, err, time.Since(start)); aerr != nil {
		s.log.Warn("audit write failed", zap.Error(aerr))
	}

	var pe *pipeline.ProcessError
	if err != nil && !errors.As(err, &pe) {
		s.log.Info("run_pipeline failed", zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := RunResult{
		Command:     chain.String(),
		Stdout:      stdout.String(),
		Stderr:      stderr.String(),
		FailedStage: -1,
	}
	res.ExitCodes, _ = chain.ExitCodes()
	if pe != nil {
		res.ExitCode = pe.Code
		res.FailedStage = chain.Index(pe.Stage)
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleRender(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, env, err := s.parseRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tail, closer, err := p.Build(env)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	closer.Close()
	return mcp.NewToolResultText(tail.String()), nil
}

// parseRequest reads the commands, env and clear_env arguments.
func (s *Server) parseRequest(req mcp.CallToolRequest) (*pipeline.Pipeline, pipeline.EnvPolicy, error) {
	args := req.GetArguments()

	raw, ok := args["commands"].([]any)
	if !ok || len(raw) == 0 {
		return nil, pipeline.EnvPolicy{}, errors.New("commands must be a non-empty array of argv arrays")
	}
	p := &pipeline.Pipeline{}
	for i, stage := range raw {
		items, ok := stage.([]any)
		if !ok || len(items) == 0 {
			return nil, pipeline.EnvPolicy{}, fmt.Errorf("commands[%d] must be a non-empty array of strings", i)
		}
		argv := make([]string, len(items))
		for j, item := range items {
			str, ok := item.(string)
			if !ok {
				return nil, pipeline.EnvPolicy{}, fmt.Errorf("commands[%d][%d] must be a string", i, j)
			}
			argv[j] = str
		}
		p.Segments = append(p.Segments, pipeline.Segment{Args: argv})
	}

	env := s.env
	if req.GetBool("clear_env", false) {
		env = pipeline.ClearedEnv(nil)
	}
	if rawEnv, ok := args["env"]; ok && rawEnv != nil {
		vars, ok := rawEnv.(map[string]any)
		if !ok {
			return nil, pipeline.EnvPolicy{}, errors.New("env must be an object of strings")
		}
		for _, k := range slices.Sorted(maps.Keys(vars)) {
			v, ok := vars[k].(string)
			if !ok {
				return nil, pipeline.EnvPolicy{}, fmt.Errorf("env[%q] must be a string", k)
			}
			env = env.With(k, v)
		}
	}
	return p, env, nil
}
