package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Var map[string]string

// Env composes the environment handed to git, uv and launched products.
// It is immutable once built; With* methods return copies.
type Env struct {
	vars Var  // global variables (K->V)
	noOS bool // do not inherit the OS environment
}

func New() *Env {
	return &Env{vars: make(Var)}
}

// Options mirrors the configuration keys that shape the environment.
type Options struct {
	UseOSEnv bool
	Files    []string
	Vars     []string
}

// Build loads env files in order and then applies Vars, so explicit
// entries override file entries. Without UseOSEnv the OS environment is not inherited.
func Build(o Options) (*Env, error) {
	e := New()
	e.noOS = !o.UseOSEnv
	for _, p := range o.Files {
		m, err := ParseFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			e.vars[k] = v
		}
	}
	for _, kv := range o.Vars {
		if k, v, ok := split(kv); ok {
			e.vars[k] = v
		}
	}
	return e, nil
}

// WithSet returns a copy with K=V added.
func (e *Env) WithSet(k, v string) *Env {
	c := e.clone()
	if k != "" {
		c.vars[k] = v
	}
	return c
}

// WithUnset returns a copy without K.
func (e *Env) WithUnset(k string) *Env {
	c := e.clone()
	delete(c.vars, k)
	return c
}

// Get returns the composed value of k.
func (e *Env) Get(k string) (string, bool) {
	for _, kv := range e.Merge(nil) {
		if kk, v, ok := split(kv); ok && kk == k {
			return v, true
		}
	}
	return "", false
}

// Merge composes the final environment list applying order:
// OS env (unless disabled), then global vars, then perProc ("K=V") overrides.
// ${VAR} references are expanded once against the composed map.
// The result is sorted by key.
func (e *Env) Merge(perProc []string) []string {
	m := make(Var)
	if !e.noOS {
		for _, kv := range os.Environ() {
			if k, v, ok := split(kv); ok {
				m[k] = v
			}
		}
	}
	for k, v := range e.vars {
		m[k] = v
	}
	for _, kv := range perProc {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func (e *Env) clone() *Env {
	c := &Env{vars: make(Var, len(e.vars)+1), noOS: e.noOS}
	for k, v := range e.vars {
		c.vars[k] = v
	}
	return c
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return "${" + k + "}"
	})
}

// ParseFile reads a .env file with KEY=VALUE lines. Blank lines and lines
// starting with # are ignored; an optional "export " prefix and matching
// surrounding quotes are stripped.
func ParseFile(path string) (Var, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	m := make(Var)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := split(line)
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
			v = v[1 : len(v)-1]
		}
		m[k] = v
	}
	return m, nil
}
