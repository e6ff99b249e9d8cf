package bootstrap

import (
	"sort"
	"strings"
)

// Env is an ordered process environment in KEY=VALUE form.
type Env struct {
	entries []string
	// windows compares keys case-insensitively
	foldKeys bool
}

// NewEnv copies environ into an Env. Keys are case-insensitive when foldKeys
// is true, matching Windows semantics.
func NewEnv(environ []string, foldKeys bool) *Env {
	entries := make([]string, len(environ))
	copy(entries, environ)
	return &Env{entries: entries, foldKeys: foldKeys}
}

func (e *Env) index(key string) int {
	for i, kv := range e.entries {
		k, _, _ := strings.Cut(kv, "=")
		if k == key || (e.foldKeys && strings.EqualFold(k, key)) {
			return i
		}
	}
	return -1
}

// Get returns the value of key and whether it is set.
func (e *Env) Get(key string) (string, bool) {
	if i := e.index(key); i >= 0 {
		_, v, _ := strings.Cut(e.entries[i], "=")
		return v, true
	}
	return "", false
}

// Set assigns key, replacing an existing entry in place.
func (e *Env) Set(key, value string) {
	kv := key + "=" + value
	if i := e.index(key); i >= 0 {
		e.entries[i] = kv
		return
	}
	e.entries = append(e.entries, kv)
}

// Prepend puts dir in front of the list variable key. The prior value, even
// when empty, follows after sep.
func (e *Env) Prepend(key, dir, sep string) {
	existing, _ := e.Get(key)
	e.Set(key, dir+sep+existing)
}

// Environ returns a copy suitable for exec.Cmd.Env.
func (e *Env) Environ() []string {
	out := make([]string, len(e.entries))
	copy(out, e.entries)
	return out
}

// Diff returns the keys whose values differ from base, sorted.
func (e *Env) Diff(base *Env) []string {
	var keys []string
	for _, kv := range e.entries {
		k, v, _ := strings.Cut(kv, "=")
		if old, ok := base.Get(k); !ok || old != v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
