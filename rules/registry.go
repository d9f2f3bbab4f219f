// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package rules

import (
	"fmt"
	"sort"
)

// Registry holds rules by name.
type Registry struct {
	rules map[string]*Rule
}

func NewRegistry() *Registry {
	return &Registry{rules: map[string]*Rule{}}
}

// Add returns an error if a rule with the same name is already registered.
func (reg *Registry) Add(r *Rule) error {
	if r == nil {
		return fmt.Errorf("registry: nil rule")
	} else if _, ok := reg.rules[r.Name]; ok {
		return fmt.Errorf("registry: duplicate rule %q", r.Name)
	}
	reg.rules[r.Name] = r
	return nil
}

// Replace adds the rule, replacing any rule with the same name.
func (reg *Registry) Replace(r *Rule) {
	reg.rules[r.Name] = r
}

func (reg *Registry) Get(name string) (*Rule, bool) {
	r, ok := reg.rules[name]
	return r, ok
}

// Names returns the registered names in sorted order.
func (reg *Registry) Names() []string {
	var names []string
	for name := range reg.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy of the registry. Rules are immutable
// once built so they are shared.
func (reg *Registry) Clone() *Registry {
	c := NewRegistry()
	for name, r := range reg.rules {
		c.rules[name] = r
	}
	return c
}
