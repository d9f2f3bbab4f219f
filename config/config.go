// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package config loads user-defined rewrite rules from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mdhender/rewriter/rules"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// File is the root of a rules file.
type File struct {
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig defines a single rule. Pattern is a Go regular expression;
// Template references its groups as $1 or ${1}.
type RuleConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Pattern     string `yaml:"pattern"`
	Template    string `yaml:"template"`
	Input       string `yaml:"input,omitempty"`  // default input path
	Output      string `yaml:"output,omitempty"` // default output path
}

// Load reads and parses the rules file at path.
func Load(fs afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a rules file. Unknown keys are rejected so that a
// misspelled field doesn't silently produce an empty template.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &f, nil
}

// Rule builds the rule described by rc.
func (rc RuleConfig) Rule() (*rules.Rule, error) {
	switch {
	case rc.Name == "":
		return nil, fmt.Errorf("missing name")
	case rc.Pattern == "":
		return nil, fmt.Errorf("rule %q: missing pattern", rc.Name)
	case rc.Template == "":
		return nil, fmt.Errorf("rule %q: missing template", rc.Name)
	}
	r, err := rules.New(rc.Name, rc.Pattern, rc.Template)
	if err != nil {
		return nil, err
	}
	r.Description = rc.Description
	r.Input, r.Output = rc.Input, rc.Output
	return r, nil
}

// Registry returns a copy of base with the file's rules added. A rule
// with the same name as one in base replaces it; two rules with the same
// name in the file are an error.
func (f *File) Registry(base *rules.Registry) (*rules.Registry, error) {
	if base == nil {
		base = rules.NewRegistry()
	}
	reg := base.Clone()
	seen := map[string]bool{}
	for i, rc := range f.Rules {
		r, err := rc.Rule()
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		} else if seen[r.Name] {
			return nil, fmt.Errorf("rules[%d]: duplicate rule %q", i, r.Name)
		}
		seen[r.Name] = true
		reg.Replace(r)
	}
	return reg, nil
}
