package specfile

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/lurock/lurock/internal/lurockerrors"
)

// Parse parses a registry spec file's text into a PackageSpec. Unknown keys
// are ignored (spec §4.D). On a malformed entry it fails with a
// lurockerrors.PackageError.
func Parse(text string) (PackageSpec, error) {
	assignments, err := tokenize(text)
	if err != nil {
		return PackageSpec{}, lurockerrors.WrapPackage(err, "parsing spec")
	}

	var spec PackageSpec
	spec.Build.Install.Bin = map[string]string{}
	spec.Build.Install.Lua = map[string]string{}
	spec.Build.Install.Lib = map[string]string{}
	spec.Build.Install.Conf = map[string]string{}
	spec.Build.Modules = map[string]string{}

	for _, a := range assignments {
		switch a.key {
		case "package":
			spec.Package = a.stringValue()
		case "version":
			spec.Version = a.stringValue()
		case "source.url":
			spec.Source.URL = a.stringValue()
		case "source.tag":
			spec.Source.Tag = a.stringValue()
		case "source.branch":
			spec.Source.Branch = a.stringValue()
		case "dependencies":
			spec.Dependencies = append(spec.Dependencies, a.listValue()...)
		case "build.type":
			spec.Build.Type = BuildType(a.stringValue())
		case "build.modules":
			mergeInto(spec.Build.Modules, a.mapValue())
		case "build.install.bin":
			mergeInto(spec.Build.Install.Bin, a.mapValue())
		case "build.install.lua":
			mergeInto(spec.Build.Install.Lua, a.mapValue())
		case "build.install.lib":
			mergeInto(spec.Build.Install.Lib, a.mapValue())
		case "build.install.conf":
			mergeInto(spec.Build.Install.Conf, a.mapValue())
		case "description":
			spec.Description = a.stringValue()
		case "homepage":
			spec.Homepage = a.stringValue()
		case "license":
			spec.License = a.stringValue()
		default:
			// unknown keys are ignored, per spec §4.D
		}
	}

	if spec.Package == "" {
		return PackageSpec{}, lurockerrors.NewPackage("spec is missing required field 'package'")
	}
	if spec.Version == "" {
		return PackageSpec{}, lurockerrors.NewPackage("spec is missing required field 'version'")
	}

	return spec, nil
}

func mergeInto(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

// assignment is one `key = value` entry, where value is either a bare quoted
// string or a `{ ... }` table literal collected verbatim between balanced
// braces.
type assignment struct {
	key string
	raw string // trimmed text to the right of '='
}

func (a assignment) stringValue() string {
	return unquote(strings.TrimSpace(a.raw))
}

// listValue parses a `{ "a", "b", "c" }` literal into its quoted elements.
func (a assignment) listValue() []string {
	inner := tableInner(a.raw)
	var out []string
	for _, item := range splitTopLevel(inner) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, unquote(item))
	}
	return out
}

// mapValue parses a `{ k1 = "v1", k2 = "v2" }` literal into a map.
func (a assignment) mapValue() map[string]string {
	inner := tableInner(a.raw)
	out := map[string]string{}
	for _, item := range splitTopLevel(inner) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = unquote(strings.TrimSpace(v))
	}
	return out
}

func tableInner(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")
	return raw
}

// splitTopLevel splits s on commas that are not nested inside quotes.
func splitTopLevel(s string) []string {
	var out []string
	var buf strings.Builder
	inQuote := false
	var quoteChar byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			buf.WriteByte(c)
			if c == quoteChar {
				inQuote = false
			}
		case c == '"' || c == '\'':
			inQuote = true
			quoteChar = c
			buf.WriteByte(c)
		case c == ',':
			out = append(out, buf.String())
			buf.Reset()
		default:
			buf.WriteByte(c)
		}
	}
	if strings.TrimSpace(buf.String()) != "" {
		out = append(out, buf.String())
	}
	return out
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// tokenize scans the spec text line by line, accumulating `key = {...}`
// table literals across lines until their braces balance, and emitting one
// assignment per top-level key. Comments ("--" to end of line, the
// scripting ecosystem's own comment syntax) are stripped before scanning.
func tokenize(text string) ([]assignment, error) {
	var assignments []assignment

	lines := strings.Split(text, "\n")
	i := 0
	for i < len(lines) {
		line := stripComment(lines[i])
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			i++
			continue
		}

		key, rhs, ok := strings.Cut(trimmed, "=")
		if !ok {
			i++
			continue
		}
		key = strings.TrimSpace(key)
		rhs = strings.TrimSpace(rhs)

		if strings.HasPrefix(rhs, "{") && balance(rhs) > 0 {
			var buf strings.Builder
			buf.WriteString(rhs)
			depth := balance(rhs)
			i++
			for depth > 0 && i < len(lines) {
				next := stripComment(lines[i])
				buf.WriteString("\n")
				buf.WriteString(next)
				depth += balance(next)
				i++
			}
			if depth != 0 {
				return nil, errors.Errorf("unbalanced braces in value for %q", key)
			}
			assignments = append(assignments, assignment{key: key, raw: buf.String()})
			continue
		}

		assignments = append(assignments, assignment{key: key, raw: rhs})
		i++
	}

	return assignments, nil
}

func stripComment(line string) string {
	if idx := strings.Index(line, "--"); idx >= 0 {
		return line[:idx]
	}
	return line
}

// balance returns the net number of unclosed '{' in s (positive means more
// opens than closes), ignoring braces inside quoted strings.
func balance(s string) int {
	depth := 0
	inQuote := false
	var quoteChar byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			if c == quoteChar {
				inQuote = false
			}
		case c == '"' || c == '\'':
			inQuote = true
			quoteChar = c
		case c == '{':
			depth++
		case c == '}':
			depth--
		}
	}
	return depth
}
