// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package rewriter rewrites lines of source text from one syntax to
// another using a capture pattern and an output template.
package rewriter

import (
	"github.com/maloquacious/semver"
)

var (
	version = semver.Version{
		Major: 0,
		Minor: 1,
		Patch: 0,
		Build: semver.Commit(),
	}
)

func Version() semver.Version {
	return version
}
