// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"maps"
	"os"
	"slices"
	"strings"
)

type envKind int

const (
	envInherit envKind = iota
	envMerge
	envCleared
)

// EnvPolicy decides the environment a stage is spawned with. The zero
// value inherits the ambient environment.
type EnvPolicy struct {
	kind envKind
	vars map[string]string
}

// InheritEnv passes the ambient environment unchanged.
func InheritEnv() EnvPolicy { return EnvPolicy{} }

// MergeEnv overlays vars on a copy of the ambient environment. An empty
// map behaves like InheritEnv.
func MergeEnv(vars map[string]string) EnvPolicy {
	return EnvPolicy{kind: envMerge, vars: maps.Clone(vars)}
}

// ClearedEnv starts from an empty environment and sets only vars.
func ClearedEnv(vars map[string]string) EnvPolicy {
	return EnvPolicy{kind: envCleared, vars: maps.Clone(vars)}
}

// KeepEnv returns a cleared policy seeded with the named ambient
// variables and every ambient variable whose name has one of prefixes.
func KeepEnv(keys, prefixes []string) EnvPolicy {
	vars := make(map[string]string)
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			vars[key] = val
		}
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(k, prefix) {
				vars[k] = v
			}
		}
	}
	return EnvPolicy{kind: envCleared, vars: vars}
}

// IsCleared reports whether the policy starts from an empty environment.
func (p EnvPolicy) IsCleared() bool { return p.kind == envCleared }

// Vars returns a copy of the policy's explicit variables.
func (p EnvPolicy) Vars() map[string]string { return maps.Clone(p.vars) }

// With returns a copy of p with key set to val. An inherit policy
// becomes a merge policy.
func (p EnvPolicy) With(key, val string) EnvPolicy {
	vars := maps.Clone(p.vars)
	if vars == nil {
		vars = make(map[string]string)
	}
	vars[key] = val
	kind := p.kind
	if kind == envInherit {
		kind = envMerge
	}
	return EnvPolicy{kind: kind, vars: vars}
}

func (p EnvPolicy) validate() error {
	switch p.kind {
	case envInherit, envMerge, envCleared:
	default:
		return configErrorf("env: unknown policy %d", int(p.kind))
	}
	for k := range p.vars {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return configErrorf("env: invalid variable name %q", k)
		}
	}
	return nil
}

// resolve returns the Env value for exec.Cmd. A nil slice means
// "inherit"; a non-nil empty slice is a truly empty environment.
func (p EnvPolicy) resolve() []string {
	switch p.kind {
	case envMerge:
		if len(p.vars) == 0 {
			return nil
		}
		env := make([]string, 0, len(p.vars))
		for _, kv := range os.Environ() {
			k, _, _ := strings.Cut(kv, "=")
			if _, override := p.vars[k]; override {
				continue
			}
			env = append(env, kv)
		}
		return append(env, p.pairs()...)
	case envCleared:
		return append([]string{}, p.pairs()...)
	default:
		return nil
	}
}

// pairs renders the explicit variables as sorted KEY=VALUE strings.
func (p EnvPolicy) pairs() []string {
	keys := slices.Sorted(maps.Keys(p.vars))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+p.vars[k])
	}
	return out
}

// prefix is the `env` invocation equivalent to the policy, or nil.
func (p EnvPolicy) prefix() []string {
	switch p.kind {
	case envCleared:
		return append([]string{"env", "-"}, p.pairs()...)
	case envMerge:
		if len(p.vars) == 0 {
			return nil
		}
		return append([]string{"env"}, p.pairs()...)
	default:
		return nil
	}
}
