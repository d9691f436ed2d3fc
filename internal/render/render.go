// Package render expands {{variable}} placeholders in notification content.
//
// The grammar is deliberately tiny: a well-formed token is {{name}} where
// name is letters, digits or underscores, optionally padded with spaces.
// Anything else ({{ without }}, empty names, stray braces) is left verbatim.
// Substituted values are never re-scanned, so a value containing {{...}}
// cannot trigger further expansion.
package render

import (
	"fmt"
	"strings"
)

// MissingVariableError is returned when content references a variable the
// caller did not supply.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing variable %q", e.Name)
}

// Content is the renderable part of a template or campaign snapshot.
type Content struct {
	Subject *string
	Body    string
}

// Render expands all well-formed tokens in the content against the variable
// map. It is pure: the same inputs always produce the same output.
func Render(content Content, variables map[string]string) (Content, error) {
	body, err := expand(content.Body, variables)
	if err != nil {
		return Content{}, err
	}

	result := Content{Body: body}
	if content.Subject != nil {
		subject, err := expand(*content.Subject, variables)
		if err != nil {
			return Content{}, err
		}
		result.Subject = &subject
	}
	return result, nil
}

// Placeholders returns the set of well-formed variable names referenced by
// the content, in order of first appearance.
func Placeholders(content Content) []string {
	seen := make(map[string]bool)
	var names []string
	collect := func(s string) {
		for _, name := range scan(s) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	if content.Subject != nil {
		collect(*content.Subject)
	}
	collect(content.Body)
	return names
}

// Lint compares declared variables against the placeholders actually present
// in the content. Undeclared names are placeholders missing from the declared
// set; unused names are declared but never referenced. Neither is a rendering
// error, but both usually indicate a template-authoring mistake.
func Lint(content Content, declared []string) (undeclared, unused []string) {
	declaredSet := make(map[string]bool, len(declared))
	for _, name := range declared {
		declaredSet[name] = true
	}

	used := make(map[string]bool)
	for _, name := range Placeholders(content) {
		used[name] = true
		if !declaredSet[name] {
			undeclared = append(undeclared, name)
		}
	}
	for _, name := range declared {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	return undeclared, unused
}

// expand substitutes tokens in a single string, writing non-token text
// through untouched.
func expand(s string, variables map[string]string) (string, error) {
	var out strings.Builder
	for i := 0; i < len(s); {
		open := strings.Index(s[i:], "{{")
		if open < 0 {
			out.WriteString(s[i:])
			break
		}
		open += i
		out.WriteString(s[i:open])

		name, end, ok := parseToken(s, open)
		if !ok {
			// Malformed token: emit the braces verbatim and move on.
			out.WriteString("{{")
			i = open + 2
			continue
		}

		value, present := variables[name]
		if !present {
			return "", &MissingVariableError{Name: name}
		}
		out.WriteString(value)
		i = end
	}
	return out.String(), nil
}

// scan returns the names of all well-formed tokens in a single string.
func scan(s string) []string {
	var names []string
	for i := 0; i < len(s); {
		open := strings.Index(s[i:], "{{")
		if open < 0 {
			break
		}
		open += i
		name, end, ok := parseToken(s, open)
		if !ok {
			i = open + 2
			continue
		}
		names = append(names, name)
		i = end
	}
	return names
}

// parseToken reads a token starting at the given "{{" offset. Returns the
// trimmed variable name and the offset just past the closing "}}".
func parseToken(s string, open int) (name string, end int, ok bool) {
	close := strings.Index(s[open+2:], "}}")
	if close < 0 {
		return "", 0, false
	}
	inner := s[open+2 : open+2+close]
	name = strings.TrimSpace(inner)
	if name == "" || !isVariableName(name) {
		return "", 0, false
	}
	return name, open + 2 + close + 2, true
}

func isVariableName(name string) bool {
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return false
	}
	return true
}
