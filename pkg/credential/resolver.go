package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/config"
	"github.com/takutakahashi/ghclient/pkg/logger"
)

// Environment variables probed, in priority order
const (
	EnvGitHubToken = "GITHUB_TOKEN"
	EnvGHToken     = "GH_TOKEN"
)

// Memo remembers which source produced the last resolved token
type Memo struct {
	mu   sync.RWMutex
	last string
}

func (m *Memo) Set(label string) {
	m.mu.Lock()
	m.last = label
	m.mu.Unlock()
}

func (m *Memo) Get() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Reset forgets the last source
func (m *Memo) Reset() { m.Set("") }

// Options configures a Resolver. The zero value probes `gh`, the process
// environment, and nothing else.
type Options struct {
	// Runner executes the CLI probe; nil means ExecRunner with CLITimeout
	Runner     Runner
	CLICommand string
	CLITimeout time.Duration
	DisableCLI bool

	// EnvMirror is checked before the process environment
	EnvMirror map[string]string
	// LookupEnv replaces os.LookupEnv, mostly for tests
	LookupEnv func(string) (string, bool)

	Store      config.Store
	ConfigPath string

	Memo   *Memo
	Logger *zerolog.Logger
}

// Resolver tries each credential probe in the fixed order
// GitHub CLI, GITHUB_TOKEN, GH_TOKEN, config.
type Resolver struct {
	probes     []Probe
	memo       *Memo
	configPath string
	log        *zerolog.Logger
}

// NewResolver builds the probe chain from opts
func NewResolver(opts Options) *Resolver {
	memo := opts.Memo
	if memo == nil {
		memo = &Memo{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("credential")
	}
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	var probes []Probe
	if !opts.DisableCLI {
		runner := opts.Runner
		if runner == nil {
			runner = ExecRunner{Timeout: opts.CLITimeout}
		}
		probes = append(probes, NewCLIProbe(runner, opts.CLICommand))
	}
	for _, name := range []string{EnvGitHubToken, EnvGHToken} {
		env := NewEnvProbe(opts.EnvMirror, name)
		if opts.LookupEnv != nil {
			env.Lookup = opts.LookupEnv
		}
		probes = append(probes, env)
	}
	probes = append(probes, NewConfigProbe(opts.Store))

	return &Resolver{probes: probes, memo: memo, configPath: configPath, log: log}
}

// FromConfig builds a resolver over cfg and store, loading cfg.EnvFile into
// the environment mirror when set
func FromConfig(cfg *config.Config, store config.Store, configPath string) (*Resolver, error) {
	mirror, err := config.LoadEnvFile(cfg.EnvFile)
	if err != nil {
		return nil, err
	}
	return NewResolver(Options{
		CLICommand: cfg.CLI.Command,
		CLITimeout: cfg.CLI.Timeout,
		DisableCLI: cfg.CLI.Disabled,
		EnvMirror:  mirror,
		Store:      store,
		ConfigPath: configPath,
	}), nil
}

// Resolve returns the first token found. With required false and no token
// anywhere it returns "", nil so the caller can go anonymous.
func (r *Resolver) Resolve(ctx context.Context, required bool) (string, error) {
	for _, p := range r.probes {
		cred, ok := p.Probe(ctx)
		if !ok {
			r.log.Debug().Str("probe", p.Name()).Msg("no credential")
			continue
		}
		label := cred.Source.Label()
		r.memo.Set(label)
		r.log.Info().Str("source", label).Msg("resolved GitHub credential")
		return cred.Value, nil
	}

	if !required {
		return "", nil
	}
	return "", apierror.New(apierror.KindAuthentication,
		"GitHub authentication required but no token was found.\n\n"+r.AuthenticationHelp()).
		AddContext("config_path", r.configPath)
}

// LastSource is the label of the source that won the last resolution, or ""
func (r *Resolver) LastSource() string { return r.memo.Get() }

// Reset clears the remembered source
func (r *Resolver) Reset() { r.memo.Reset() }

// IsAuthenticated reports whether a previous Resolve found a token
func (r *Resolver) IsAuthenticated() bool { return r.LastSource() != "" }

// AuthenticationStatus describes the active credential source in one sentence
func (r *Resolver) AuthenticationStatus() string {
	switch src := r.LastSource(); src {
	case "":
		return fmt.Sprintf("No authentication configured; using unauthenticated access limited to %d requests/hour for public resources.",
			apierror.UnauthenticatedLimit)
	case "GitHub CLI":
		return "Authenticated via GitHub CLI (gh auth token)."
	case "config":
		return fmt.Sprintf("Authenticated via token in config file %s.", r.configPath)
	default:
		return fmt.Sprintf("Authenticated via %s environment variable.", src)
	}
}

// AuthenticationHelp lists every way to supply a token
func (r *Resolver) AuthenticationHelp() string {
	var b strings.Builder
	b.WriteString("To authenticate with GitHub, use one of:\n")
	b.WriteString("  1. GitHub CLI: run `gh auth login`\n")
	fmt.Fprintf(&b, "  2. Environment: export %s=<token> (or %s=<token>)\n", EnvGitHubToken, EnvGHToken)
	fmt.Fprintf(&b, "  3. Config file: set `%s` in %s\n", config.KeyToken, r.configPath)
	b.WriteString("\nAuthentication is optional for public resources, but it raises the rate limit from 60 to 5,000 requests/hour.")
	return b.String()
}
