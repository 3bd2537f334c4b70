// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import "os"

// Route is the resolved source or destination of a stage's stdin, stdout
// or stderr. The zero value is RouteInherit.
type Route struct {
	kind  RouteKind
	file  *os.File
	stage *Stage
}

// Inherit routes a stream to the caller's own descriptor.
func Inherit() Route { return Route{kind: RouteInherit} }

// Piped routes a stream through a pipe held by the caller.
func Piped() Route { return Route{kind: RoutePipe} }

// File routes a stream to or from f. The caller keeps ownership of f.
func File(f *os.File) Route { return Route{kind: RouteFile, file: f} }

// From routes stdin from the stdout of s.
func From(s *Stage) Route { return Route{kind: RouteUpstream, stage: s} }

// Kind reports the route's tag.
func (r Route) Kind() RouteKind { return r.kind }

// Handle returns the file of a RouteFile route, nil otherwise.
func (r Route) Handle() *os.File { return r.file }

// validate checks r for use as the named stream. Only stdin may be
// RouteUpstream.
func (r Route) validate(stream string) error {
	switch r.kind {
	case RouteInherit, RoutePipe:
		return nil
	case RouteFile:
		if r.file == nil {
			return configErrorf("%s: file route needs a file handle", stream)
		}
		return nil
	case RouteUpstream:
		if stream != "stdin" {
			return configErrorf("%s can't be anything else than a pipe, a file or inherited", stream)
		}
		if r.stage == nil {
			return configErrorf("stdin: upstream route needs a stage")
		}
		return nil
	default:
		return configErrorf("%s: unknown route kind %d", stream, int(r.kind))
	}
}
