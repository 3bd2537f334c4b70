// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"strings"
)

// Parse takes pre-tokenized args (as delivered by the shell) and builds a Pipeline.
// It splits on ¦ to get pipe segments, and handles ‹/› for redirects.
func Parse(args []string) (*Pipeline, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("empty pipeline")
	}

	p := &Pipeline{}

	// First pass: extract redirects from the flat arg list.
	// ‹ <file> can appear anywhere (applies to first segment's stdin).
	// › <file> can appear anywhere (applies to last segment's stdout).
	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case OpRedirectIn:
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires a file path", OpRedirectIn)
			}
			if p.RedirectIn != "" {
				return nil, fmt.Errorf("multiple %s redirects", OpRedirectIn)
			}
			i++
			p.RedirectIn = args[i]
		case OpRedirectOut:
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires a file path", OpRedirectOut)
			}
			if p.RedirectOut != "" {
				return nil, fmt.Errorf("multiple %s redirects", OpRedirectOut)
			}
			i++
			p.RedirectOut = args[i]
		default:
			filtered = append(filtered, args[i])
		}
	}

	// Second pass: split on ¦ to get pipe segments.
	var current []string
	for _, arg := range filtered {
		if arg == OpPipe {
			if len(current) == 0 {
				return nil, fmt.Errorf("empty segment before %s", OpPipe)
			}
			seg, err := parseSegment(current)
			if err != nil {
				return nil, err
			}
			p.Segments = append(p.Segments, seg)
			current = nil
		} else {
			current = append(current, arg)
		}
	}
	if len(current) == 0 {
		return nil, fmt.Errorf("empty segment after %s", OpPipe)
	}
	seg, err := parseSegment(current)
	if err != nil {
		return nil, err
	}
	p.Segments = append(p.Segments, seg)

	return p, nil
}

// parseSegment peels leading NAME=value assignments off a segment, the
// way a shell scopes them to one command.
func parseSegment(args []string) (Segment, error) {
	seg := Segment{}
	i := 0
	for ; i < len(args); i++ {
		name, val, ok := strings.Cut(args[i], "=")
		if !ok || !isEnvName(name) {
			break
		}
		if seg.Env == nil {
			seg.Env = make(map[string]string)
		}
		seg.Env[name] = val
	}
	if i == len(args) {
		return Segment{}, fmt.Errorf("segment %q has no command", strings.Join(args, " "))
	}
	seg.Args = args[i:]
	return seg, nil
}

func isEnvName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case '0' <= r && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ParseCommand splits args on compound operators (＆＆, ‖, ；) to get
// pipeline sections, then parses each section as a Pipeline.
// If no compound operators are present, the result is a single-step Command.
func ParseCommand(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := &Command{}
	var current []string

	for _, arg := range args {
		if op := toOperator(arg); op != "" {
			if len(current) == 0 {
				return nil, fmt.Errorf("empty pipeline before %s", arg)
			}
			p, err := Parse(current)
			if err != nil {
				return nil, err
			}
			cmd.Steps = append(cmd.Steps, CommandStep{Pipeline: p, Op: op})
			current = nil
		} else {
			current = append(current, arg)
		}
	}

	// Final section (no trailing operator).
	if len(current) == 0 {
		return nil, fmt.Errorf("empty pipeline after compound operator")
	}
	p, err := Parse(current)
	if err != nil {
		return nil, err
	}
	cmd.Steps = append(cmd.Steps, CommandStep{Pipeline: p})

	return cmd, nil
}

// toOperator checks if a token is a compound operator.
func toOperator(token string) Operator {
	switch token {
	case OpAndThen:
		return Operator(OpAndThen)
	case OpOrElse:
		return Operator(OpOrElse)
	case OpSequential:
		return Operator(OpSequential)
	default:
		return ""
	}
}
