// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package rules implements the capture patterns and output templates
// used to rewrite lines of text.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule pairs a capture pattern with the template that formats each match.
type Rule struct {
	Name        string
	Description string
	// Input and Output are the default paths used when the caller
	// does not provide any.
	Input  string
	Output string

	re       *regexp.Regexp
	template string
}

// New compiles the pattern and checks that every group the template
// references exists in the pattern.
func New(name, pattern, template string) (*Rule, error) {
	if name == "" {
		return nil, fmt.Errorf("rule: missing name")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %q: pattern: %w", name, err)
	}
	if re.NumSubexp() == 0 {
		return nil, fmt.Errorf("rule %q: pattern has no capture groups", name)
	}
	for _, ref := range templateRefs(template) {
		if !hasGroup(re, ref) {
			return nil, fmt.Errorf("rule %q: template references group %q, pattern has %d groups", name, ref, re.NumSubexp())
		}
	}
	return &Rule{
		Name:     name,
		re:       re,
		template: template,
	}, nil
}

// templateRefs returns the group names referenced by the template, read
// the same way Regexp.Expand reads them: $$ is a literal dollar sign,
// ${name} is a braced reference, and $name takes the longest run of
// letters, digits and underscores. A $ that starts neither is copied
// through by Expand and is not a reference.
func templateRefs(template string) []string {
	var refs []string
	for len(template) > 0 {
		i := strings.IndexByte(template, '$')
		if i < 0 {
			break
		}
		template = template[i+1:]
		if strings.HasPrefix(template, "$") {
			template = template[1:]
			continue
		}
		braced := strings.HasPrefix(template, "{")
		if braced {
			template = template[1:]
		}
		n := 0
		for n < len(template) {
			ch, size := utf8.DecodeRuneInString(template[n:])
			if ch != '_' && !unicode.IsLetter(ch) && !unicode.IsDigit(ch) {
				break
			}
			n += size
		}
		if n == 0 || (braced && (n >= len(template) || template[n] != '}')) {
			continue
		}
		refs = append(refs, template[:n])
		if braced {
			n++
		}
		template = template[n:]
	}
	return refs
}

// hasGroup reports whether ref names group 0, a numbered group, or a
// named group of the pattern.
func hasGroup(re *regexp.Regexp, ref string) bool {
	if n, err := strconv.Atoi(ref); err == nil && strings.Trim(ref, "0123456789") == "" {
		return n <= re.NumSubexp()
	}
	for _, name := range re.SubexpNames() {
		if name != "" && name == ref {
			return true
		}
	}
	return false
}

// MustNew is like New but panics if the rule can't be built.
func MustNew(name, pattern, template string) *Rule {
	r, err := New(name, pattern, template)
	if err != nil {
		panic(err)
	}
	return r
}

// Groups returns the number of capture groups in the pattern.
func (r *Rule) Groups() int {
	return r.re.NumSubexp()
}

// Pattern returns the source text of the capture pattern.
func (r *Rule) Pattern() string {
	return r.re.String()
}

// Template returns the output template.
func (r *Rule) Template() string {
	return r.template
}

// Records returns the formatted record for every non-overlapping match
// in the line, in the order they appear. A line with no match returns nil.
func (r *Rule) Records(line string) []string {
	var records []string
	for _, m := range r.re.FindAllStringSubmatchIndex(line, -1) {
		records = append(records, string(r.re.ExpandString(nil, r.template, line, m)))
	}
	return records
}

// Tuples returns the captured groups of every match in the line.
// Group zero (the whole match) is not included.
func (r *Rule) Tuples(line string) [][]string {
	var tuples [][]string
	for _, m := range r.re.FindAllStringSubmatch(line, -1) {
		tuples = append(tuples, m[1:])
	}
	return tuples
}

// Format expands the template with the captured groups of a single match.
// Missing groups expand to the empty string.
func (r *Rule) Format(tuple []string) string {
	// Expand wants a source string and offsets into it, so lay the tuple
	// out end to end and point each group at its own slice.
	var sb strings.Builder
	match := make([]int, 2*(r.re.NumSubexp()+1))
	for i := 1; i <= r.re.NumSubexp(); i++ {
		match[2*i], match[2*i+1] = -1, -1
		if i <= len(tuple) {
			match[2*i] = sb.Len()
			sb.WriteString(tuple[i-1])
			match[2*i+1] = sb.Len()
		}
	}
	match[1] = sb.Len()
	return string(r.re.ExpandString(nil, r.template, sb.String(), match))
}

func (r *Rule) String() string {
	return r.Name
}
