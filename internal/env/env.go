// Package env composes the environment handed to the launched service.
// Precedence, lowest first: the controller's OS environment (opt-in), then
// env files in listed order, then explicit KEY=VALUE pairs. After the merge,
// ${NAME} references inside values are expanded against the composed set.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Builder collects the environment sources from the service config.
type Builder struct {
	UseOS bool
	Files []string
	Pairs []string
}

// Environ returns the composed "KEY=VALUE" list. A Builder with no sources
// returns nil, which makes the child inherit the controller's environment.
func (b Builder) Environ() ([]string, error) {
	if !b.UseOS && len(b.Files) == 0 && len(b.Pairs) == 0 {
		return nil, nil
	}

	m := make(map[string]string)
	if b.UseOS {
		for _, kv := range os.Environ() {
			if k, v, ok := split(kv); ok {
				m[k] = v
			}
		}
	}
	for _, f := range b.Files {
		pairs, err := ParseFile(f)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", f, err)
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range b.Pairs {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}

	// Single expansion pass against the unexpanded map; values referring to
	// each other resolve one level, never recursively.
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out, nil
}

// ParseFile reads a .env style file: KEY=VALUE per line, blank lines and
// #-comments ignored, no quoting or export keywords.
func ParseFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}

// split breaks a KEY=VALUE pair; entries with an empty key are dropped.
func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

// expand substitutes ${NAME} occurrences from m, leaving unknown references
// and bare $ untouched.
func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var out strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			if j := strings.IndexByte(s[i+2:], '}'); j >= 0 {
				if v, ok := m[s[i+2:i+2+j]]; ok {
					out.WriteString(v)
					i += j + 3
					continue
				}
			}
		}
		out.WriteByte(s[i])
		i++
	}
	return out.String()
}
