// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package rewrite

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
)

// Policy controls what happens to an existing output file.
type Policy int

const (
	// Truncate empties the output once, before the first line is written.
	Truncate Policy = iota
	// Append keeps the existing output and adds to the end of it.
	Append
)

func (p Policy) String() string {
	switch p {
	case Truncate:
		return "truncate"
	case Append:
		return "append"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

type config struct {
	fs            afero.Fs
	policy        Policy
	autoEOL       bool
	dropUnmatched bool
	logger        *slog.Logger
}

type Option func(c *config) error

// WithFS sets the filesystem used for input and output.
func WithFS(fs afero.Fs) Option {
	return func(c *config) error {
		if fs == nil {
			return fmt.Errorf("fs: nil filesystem")
		}
		c.fs = fs
		return nil
	}
}

func WithPolicy(p Policy) Option {
	return func(c *config) error {
		switch p {
		case Truncate, Append:
			c.policy = p
			return nil
		}
		return fmt.Errorf("policy: unknown policy %d", int(p))
	}
}

// WithAutoEOL converts CR+LF and lone CR line endings to LF before
// splitting the input into lines.
func WithAutoEOL(flag bool) Option {
	return func(c *config) error {
		c.autoEOL = flag
		return nil
	}
}

// WithDropUnmatched omits the output line for input lines with no match.
// By default every input line produces an output line, which is empty
// when nothing matched.
func WithDropUnmatched(flag bool) Option {
	return func(c *config) error {
		c.dropUnmatched = flag
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}
