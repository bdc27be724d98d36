package registry

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-testrun/types"
)

// Registry holds the suites selected for a run.
type Registry struct {
	config        Config
	suites        []types.SuiteMetadata
	noisePatterns []string
	mu            sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log            log.Logger
	SuitesFile     string
	Filter         string        // glob over suite names, empty selects all
	DefaultTimeout time.Duration // used when neither the suite nor the file sets one
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.SuitesFile == "" {
		return nil, fmt.Errorf("suites file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
	}
	if err := r.loadSuites(cfg.SuitesFile); err != nil {
		return nil, fmt.Errorf("failed to load suites: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "len(suites)", len(r.suites), "filter", cfg.Filter)

	return r, nil
}

func (r *Registry) loadSuites(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	suitesConfig, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := validate(suitesConfig); err != nil {
		return fmt.Errorf("invalid suites file %s: %w", path, err)
	}

	var match glob.Glob
	if r.config.Filter != "" {
		match, err = glob.Compile(r.config.Filter)
		if err != nil {
			return fmt.Errorf("invalid suites filter %q: %w", r.config.Filter, err)
		}
	}

	baseDir := filepath.Dir(path)
	var suites []types.SuiteMetadata
	for _, sc := range suitesConfig.Suites {
		if match != nil && !match.Match(sc.Name) {
			r.config.Log.Debug("Suite excluded by filter", "suite", sc.Name)
			continue
		}
		suites = append(suites, r.resolve(sc, suitesConfig, baseDir))
	}
	if len(suites) == 0 {
		return errors.New("no suites selected")
	}

	r.suites = suites
	r.noisePatterns = suitesConfig.NoisePatterns
	return nil
}

func (r *Registry) resolve(sc types.SuiteConfig, file *types.SuitesConfig, baseDir string) types.SuiteMetadata {
	env := maps.Clone(file.Env)
	if env == nil {
		env = make(map[string]string, len(sc.Env))
	}
	maps.Copy(env, sc.Env)

	timeout := r.config.DefaultTimeout
	if file.DefaultTimeout != nil {
		timeout = *file.DefaultTimeout
	}
	if sc.Timeout != nil {
		timeout = *sc.Timeout
	}

	dir := sc.Dir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(baseDir, dir)
	}

	emit := true
	if sc.Emit != nil {
		emit = *sc.Emit
	}

	return types.SuiteMetadata{
		Name:        sc.Name,
		Description: sc.Description,
		Argv:        sc.Argv,
		Env:         env,
		Dir:         dir,
		Timeout:     timeout,
		Emit:        emit,
	}
}

// GetSuites returns the selected suites in file order.
func (r *Registry) GetSuites() []types.SuiteMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.suites
}

// GetNoisePatterns returns the extra stderr noise patterns from the suites file.
func (r *Registry) GetNoisePatterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.noisePatterns
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// loadConfig loads a suites file, picking the decoder by extension.
func loadConfig(path string) (*types.SuitesConfig, error) {
	log.Debug("Reading suites file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg types.SuitesConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported suites file extension %q (want .yaml, .yml or .toml)", ext)
	}

	return &cfg, nil
}

func validate(cfg *types.SuitesConfig) error {
	if len(cfg.Suites) == 0 {
		return errors.New("no suites defined")
	}
	seen := make(map[string]bool, len(cfg.Suites))
	for i, s := range cfg.Suites {
		if s.Name == "" {
			return fmt.Errorf("suite #%d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate suite name %q", s.Name)
		}
		seen[s.Name] = true
		if len(s.Argv) == 0 || s.Argv[0] == "" {
			return fmt.Errorf("suite %q has an empty argv", s.Name)
		}
		if s.Timeout != nil && *s.Timeout < 0 {
			return fmt.Errorf("suite %q has a negative timeout", s.Name)
		}
	}
	return nil
}
