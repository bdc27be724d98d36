package execution

import (
	"maps"
	"os"
	"slices"
	"sort"
	"strings"
)

// CommandSpec describes one child process execution.
//
// Env entries are applied on top of the parent environment; an entry with the
// same key as an inherited variable replaces it. Dir, when set, must exist.
// Emit controls whether lines are forwarded to the live sink; lines are
// accumulated either way.
type CommandSpec struct {
	Argv []string
	Env  map[string]string
	Dir  string
	Emit bool
}

// SpecOption configures a CommandSpec built with NewCommandSpec.
type SpecOption func(*CommandSpec)

// WithEnv adds environment overrides.
func WithEnv(env map[string]string) SpecOption {
	return func(s *CommandSpec) {
		if s.Env == nil {
			s.Env = make(map[string]string, len(env))
		}
		maps.Copy(s.Env, env)
	}
}

// WithDir sets the working directory.
func WithDir(dir string) SpecOption {
	return func(s *CommandSpec) {
		s.Dir = dir
	}
}

// WithoutEmit disables live forwarding.
func WithoutEmit() SpecOption {
	return func(s *CommandSpec) {
		s.Emit = false
	}
}

// NewCommandSpec returns a spec that owns copies of argv and every option value.
// Live forwarding is enabled unless WithoutEmit is given.
func NewCommandSpec(argv []string, opts ...SpecOption) CommandSpec {
	s := CommandSpec{
		Argv: slices.Clone(argv),
		Emit: true,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Validate checks the parts of the spec that can be checked without touching
// the filesystem.
func (s CommandSpec) Validate() error {
	if len(s.Argv) == 0 || s.Argv[0] == "" {
		return ErrEmptyArgv
	}
	return nil
}

// Environ returns the environment the child will see: the parent's
// environment with Env applied on top. It returns nil when there are no
// overrides so that os/exec inherits the parent environment untouched.
func (s CommandSpec) Environ() []string {
	if len(s.Env) == 0 {
		return nil
	}
	base := os.Environ()
	env := make([]string, 0, len(base)+len(s.Env))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, overridden := s.Env[k]; overridden {
			continue
		}
		env = append(env, kv)
	}
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+s.Env[k])
	}
	return env
}

func (s CommandSpec) clone() CommandSpec {
	return CommandSpec{
		Argv: slices.Clone(s.Argv),
		Env:  maps.Clone(s.Env),
		Dir:  s.Dir,
		Emit: s.Emit,
	}
}
