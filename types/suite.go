package types

import (
	"maps"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
)

// SuitesConfig is the on-disk form of a suites file (YAML or TOML).
type SuitesConfig struct {
	Env            map[string]string `yaml:"env,omitempty" toml:"env,omitempty"`
	NoisePatterns  []string          `yaml:"noise_patterns,omitempty" toml:"noise_patterns,omitempty"`
	DefaultTimeout *time.Duration    `yaml:"default_timeout,omitempty" toml:"default_timeout,omitempty"`
	Suites         []SuiteConfig     `yaml:"suites" toml:"suites"`
}

// SuiteConfig is one suite entry of a suites file.
type SuiteConfig struct {
	Name        string            `yaml:"name" toml:"name"`
	Description string            `yaml:"description,omitempty" toml:"description,omitempty"`
	Argv        []string          `yaml:"argv" toml:"argv"`
	Env         map[string]string `yaml:"env,omitempty" toml:"env,omitempty"`
	Dir         string            `yaml:"dir,omitempty" toml:"dir,omitempty"`
	Timeout     *time.Duration    `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Emit        *bool             `yaml:"emit,omitempty" toml:"emit,omitempty"`
}

// SuiteMetadata is a resolved suite, ready to be turned into a command.
// Env already contains the global entries; Dir is absolute or empty.
type SuiteMetadata struct {
	Name        string
	Description string
	Argv        []string
	Env         map[string]string
	Dir         string
	Timeout     time.Duration
	Emit        bool
}

// Placeholders are substituted into argv, env values and dir of a suite
// right before it runs.
type Placeholders struct {
	ResultsDir string
	RunID      string
}

func (p Placeholders) replacer(suite string) *strings.Replacer {
	return strings.NewReplacer(
		"{results}", p.ResultsDir,
		"{run_id}", p.RunID,
		"{suite}", suite,
	)
}

// SubstituteArgs replaces the placeholders in each argument.
func SubstituteArgs(args []string, suite string, p Placeholders) []string {
	r := p.replacer(suite)
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = r.Replace(arg)
	}
	return result
}

// CommandSpec builds the execution spec for this suite.
func (s SuiteMetadata) CommandSpec(p Placeholders) execution.CommandSpec {
	r := p.replacer(s.Name)
	env := maps.Clone(s.Env)
	for k, v := range env {
		env[k] = r.Replace(v)
	}
	opts := []execution.SpecOption{execution.WithEnv(env)}
	if s.Dir != "" {
		opts = append(opts, execution.WithDir(r.Replace(s.Dir)))
	}
	if !s.Emit {
		opts = append(opts, execution.WithoutEmit())
	}
	return execution.NewCommandSpec(SubstituteArgs(s.Argv, s.Name, p), opts...)
}

// CommandLine renders argv for logs and reports.
func (s SuiteMetadata) CommandLine() string {
	return strings.Join(s.Argv, " ")
}
