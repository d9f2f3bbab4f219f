// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package main

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mdhender/rewriter/rewrite"
)

// runCommand executes a fresh root command with args and returns the exit
// status along with what went to stdout, stderr and the log.
func runCommand(t *testing.T, args ...string) (status int, stdout, stderr, logged string) {
	t.Helper()
	var outBuf, errBuf, logBuf bytes.Buffer
	log.SetOutput(&logBuf)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
	})

	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	status = execute(cmd)
	return status, outBuf.String(), errBuf.String(), logBuf.String()
}

func TestExecute_LogsErrorOnce(t *testing.T) {
	dir := t.TempDir()
	status, _, stderr, logged := runCommand(t, "rewrite", "--rule", "nope",
		filepath.Join(dir, "in.txt"), filepath.Join(dir, "out.txt"))
	if status != 1 {
		t.Errorf("status = %d, want 1", status)
	}
	if n := strings.Count(logged, `unknown rule "nope"`); n != 1 {
		t.Errorf("log has the error %d times, want 1:\n%s", n, logged)
	}
	if strings.Contains(stderr, "Error:") {
		t.Errorf("stderr = %q, want no cobra error line", stderr)
	}
}

func TestExecute_Success(t *testing.T) {
	status, stdout, _, logged := runCommand(t, "rules")
	if status != 0 {
		t.Fatalf("status = %d, want 0: %s", status, logged)
	}
	for _, name := range []string{"lookup", "palette"} {
		if !strings.Contains(stdout, name) {
			t.Errorf("rules output missing %q:\n%s", name, stdout)
		}
	}
}

func TestHistory_Output(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	first, second := filepath.Join(dir, "first.txt"), filepath.Join(dir, "second.txt")
	ledger := filepath.Join(dir, "ledger.db")
	if err := os.WriteFile(input, []byte("{ \"ADC\", &a::ADC, &a::IMM, 2 },\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, args := range [][]string{
		{"rewrite", "--quiet", "--ledger", ledger, input, first},
		{"rewrite", "--quiet", "--ledger", ledger, input, second},
		{"rewrite", "--quiet", "--ledger", ledger, "--check", input, first},
	} {
		if status, _, _, logged := runCommand(t, args...); status != 0 {
			t.Fatalf("%v: status %d: %s", args, status, logged)
		}
	}

	status, stdout, _, logged := runCommand(t, "history", "--ledger", ledger, "--output", first)
	if status != 0 {
		t.Fatalf("history: status %d: %s", status, logged)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("history printed %d lines, want header and one run:\n%s", len(lines), stdout)
	}
	row := lines[1]
	if !strings.Contains(row, first) || strings.Contains(row, second) {
		t.Errorf("row = %q, want the run that wrote %s", row, first)
	}
	if !strings.Contains(row, "truncate") {
		t.Errorf("row = %q, want the truncate run, not the check", row)
	}
	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if want := rewrite.Digest(data)[:12]; !strings.Contains(row, want) {
		t.Errorf("row = %q, want digest %s", row, want)
	}
}

func TestHistory_OutputNeverWritten(t *testing.T) {
	dir := t.TempDir()
	ledger := filepath.Join(dir, "ledger.db")
	if status, _, _, logged := runCommand(t, "init-db", ledger); status != 0 {
		t.Fatalf("init-db: status %d: %s", status, logged)
	}
	status, _, _, logged := runCommand(t, "history", "--ledger", ledger, "--output", filepath.Join(dir, "out.txt"))
	if status != 1 {
		t.Errorf("status = %d, want 1", status)
	}
	if !strings.Contains(logged, "no successful run recorded") {
		t.Errorf("log = %q, want no successful run", logged)
	}
}

func TestRewrite_CheckReportsLastRun(t *testing.T) {
	dir := t.TempDir()
	input, output := filepath.Join(dir, "in.txt"), filepath.Join(dir, "out.txt")
	ledger := filepath.Join(dir, "ledger.db")
	if err := os.WriteFile(input, []byte("palScreen[0x00] = olc::Pixel(84, 84, 84);\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if status, _, _, logged := runCommand(t, "rewrite", "--quiet", "--rule", "palette", "--ledger", ledger, input, output); status != 0 {
		t.Fatalf("rewrite: status %d: %s", status, logged)
	}
	if err := os.WriteFile(output, []byte("edited by hand\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	status, _, _, logged := runCommand(t, "rewrite", "--quiet", "--rule", "palette", "--ledger", ledger, "--check", input, output)
	if status != 1 {
		t.Errorf("status = %d, want 1", status)
	}
	if !strings.Contains(logged, "modified since run 1") {
		t.Errorf("log = %q, want the output reported as modified since run 1", logged)
	}
}
