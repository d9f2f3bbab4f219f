// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package rewrite implements the rewrite pass: read every line of an
// input file, format each match of a rule, and write one output line per
// input line.
package rewrite

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mdhender/rewriter/rules"
	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

// Rewriter applies a single rule to input files.
type Rewriter struct {
	rule *rules.Rule
	cfg  config
}

// Result holds the counters for a single pass.
type Result struct {
	Rule      string
	Policy    Policy
	Lines     int // input lines read
	Matched   int // input lines with at least one match
	Unmatched int // input lines with no match
	Records   int // formatted records written
	Bytes     int64
	Digest    string // BLAKE2b-256 of the bytes written by this pass
	Elapsed   time.Duration
}

// New returns a Rewriter for the rule. The defaults are the OS filesystem,
// the Truncate policy, automatic line ending conversion, and an empty
// output line for every unmatched input line.
func New(rule *rules.Rule, opts ...Option) (*Rewriter, error) {
	if rule == nil {
		return nil, fmt.Errorf("rewrite: nil rule")
	}
	rw := &Rewriter{
		rule: rule,
		cfg: config{
			fs:      afero.NewOsFs(),
			policy:  Truncate,
			autoEOL: true,
			logger:  slog.Default(),
		},
	}
	for _, opt := range opts {
		if err := opt(&rw.cfg); err != nil {
			return nil, fmt.Errorf("rewrite: %w", err)
		}
	}
	return rw, nil
}

func (rw *Rewriter) Rule() *rules.Rule {
	return rw.rule
}

func (rw *Rewriter) Policy() Policy {
	return rw.cfg.policy
}

// Run reads the input, then opens the output according to the policy
// and writes the rewritten lines to it.
func (rw *Rewriter) Run(ctx context.Context, input, output string) (*Result, error) {
	started := time.Now()
	lines, err := rw.readLines(input)
	if err != nil {
		return nil, err
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if rw.cfg.policy == Append {
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	fp, err := rw.cfg.fs.OpenFile(output, flag, 0o644)
	if err != nil {
		return nil, &ErrOpenOutput{Path: output, Err: err}
	}
	defer fp.Close()

	result, err := rw.pass(ctx, lines, fp, output)
	if err != nil {
		return result, err
	}
	if err := fp.Close(); err != nil {
		return result, &ErrWriteOutput{Path: output, Err: err}
	}
	result.Elapsed = time.Since(started)
	rw.cfg.logger.Info("rewrite: complete",
		"rule", rw.rule.Name,
		"input", input,
		"output", output,
		"policy", rw.cfg.policy.String(),
		"lines", result.Lines,
		"records", result.Records,
		"unmatched", result.Unmatched,
		"elapsed", result.Elapsed)
	return result, nil
}

// Render runs the pass into memory instead of a file.
func (rw *Rewriter) Render(ctx context.Context, input string) ([]byte, *Result, error) {
	started := time.Now()
	lines, err := rw.readLines(input)
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	result, err := rw.pass(ctx, lines, &buf, "<memory>")
	if err != nil {
		return nil, result, err
	}
	result.Elapsed = time.Since(started)
	return buf.Bytes(), result, nil
}

// Check renders the input and compares it with the current contents of
// the output file, which is not modified. It returns *ErrStaleOutput
// when they differ.
func (rw *Rewriter) Check(ctx context.Context, input, output string) (*Result, error) {
	data, result, err := rw.Render(ctx, input)
	if err != nil {
		return result, err
	}
	current, err := afero.ReadFile(rw.cfg.fs, output)
	if err != nil {
		return result, &ErrOpenOutput{Path: output, Err: err}
	}
	if !bytes.Equal(data, current) {
		return result, &ErrStaleOutput{Path: output, Want: result.Digest, Have: Digest(current)}
	}
	return result, nil
}

// RewriteLines returns the output lines, without terminators, for the
// input lines.
func (rw *Rewriter) RewriteLines(lines []string) ([]string, Result) {
	result := Result{Rule: rw.rule.Name, Policy: rw.cfg.policy}
	var out []string
	for n, line := range lines {
		if text, keep := rw.rewriteLine(n+1, line, &result); keep {
			out = append(out, text)
		}
	}
	return out, result
}

// rewriteLine formats every match in line number lineNo and adds it to
// the counters. keep is false when the line has no match and unmatched
// lines are dropped.
func (rw *Rewriter) rewriteLine(lineNo int, line string, result *Result) (text string, keep bool) {
	records := rw.rule.Records(line)
	result.Lines++
	result.Records += len(records)
	if len(records) == 0 {
		result.Unmatched++
		rw.cfg.logger.Debug("rewrite: no match", "rule", rw.rule.Name, "line", lineNo)
		return "", !rw.cfg.dropUnmatched
	}
	result.Matched++
	return strings.Join(records, ""), true
}

// pass writes one output line per input line. It checks for cancellation
// between lines and stops at the first write error.
func (rw *Rewriter) pass(ctx context.Context, lines []string, w io.Writer, path string) (*Result, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("rewrite: digest: %w", err)
	}
	cw := &countingWriter{w: io.MultiWriter(w, h)}
	bw := bufio.NewWriter(cw)

	result := &Result{Rule: rw.rule.Name, Policy: rw.cfg.policy}
	for n, line := range lines {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		text, keep := rw.rewriteLine(n+1, line, result)
		if !keep {
			continue
		}
		if _, err := bw.WriteString(text); err != nil {
			return result, &ErrWriteOutput{Path: path, Line: n + 1, Err: err}
		} else if err := bw.WriteByte('\n'); err != nil {
			return result, &ErrWriteOutput{Path: path, Line: n + 1, Err: err}
		}
	}
	if err := bw.Flush(); err != nil {
		return result, &ErrWriteOutput{Path: path, Err: err}
	}
	result.Bytes = cw.n
	result.Digest = digest(h)
	return result, nil
}

// readLines reads the whole input up front and splits it into lines.
// A trailing line terminator does not start an extra, empty line.
func (rw *Rewriter) readLines(input string) ([]string, error) {
	data, err := afero.ReadFile(rw.cfg.fs, input)
	if err != nil {
		return nil, &ErrOpenInput{Path: input, Err: err}
	}
	if rw.cfg.autoEOL {
		data = bytes.ReplaceAll(data, []byte{'\r', '\n'}, []byte{'\n'})
		data = bytes.ReplaceAll(data, []byte{'\r'}, []byte{'\n'})
	}
	return SplitLines(string(data)), nil
}

// SplitLines splits text on LF. A trailing LF does not start an extra,
// empty line, so "a\nb\n" and "a\nb" both return two lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Digest returns the hex BLAKE2b-256 digest of data, matching the
// digest recorded in Result.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func digest(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
