// Package credential finds a GitHub token in the places a developer usually
// keeps one: the GitHub CLI, the environment, and the config file.
package credential

import (
	"context"
	"os"
	"strings"

	"github.com/takutakahashi/ghclient/pkg/config"
)

// SourceKind enumerates where a credential came from
type SourceKind uint8

const (
	SourceCLI SourceKind = iota + 1
	SourceEnv
	SourceConfig
)

// Source identifies the probe that produced a credential. For SourceEnv,
// EnvVar names the variable.
type Source struct {
	Kind   SourceKind
	EnvVar string
}

// CLISource, EnvSource and ConfigSource are the only ways to build a Source
func CLISource() Source { return Source{Kind: SourceCLI} }

func EnvSource(name string) Source { return Source{Kind: SourceEnv, EnvVar: name} }

func ConfigSource() Source { return Source{Kind: SourceConfig} }

// Label is the name recorded as the resolver's last source
func (s Source) Label() string {
	switch s.Kind {
	case SourceCLI:
		return "GitHub CLI"
	case SourceEnv:
		return s.EnvVar
	case SourceConfig:
		return "config"
	default:
		return ""
	}
}

// Credential is a resolved token and its origin
type Credential struct {
	Value  string
	Source Source
}

// Probe looks in one place for a token. A miss is never an error.
type Probe interface {
	Name() string
	Probe(ctx context.Context) (Credential, bool)
}

// CLIProbe asks the GitHub CLI for its stored token
type CLIProbe struct {
	Runner  Runner
	Command string
}

// NewCLIProbe runs `<command> auth token` through runner. An empty command
// means "gh".
func NewCLIProbe(runner Runner, command string) *CLIProbe {
	if command == "" {
		command = "gh"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &CLIProbe{Runner: runner, Command: command}
}

func (p *CLIProbe) Name() string { return "GitHub CLI" }

func (p *CLIProbe) Probe(ctx context.Context) (Credential, bool) {
	res, err := p.Runner.Run(ctx, []string{p.Command, "auth", "token"})
	if err != nil || res.ExitCode != 0 {
		return Credential{}, false
	}
	token := strings.TrimSpace(res.Stdout)
	if token == "" {
		return Credential{}, false
	}
	return Credential{Value: token, Source: CLISource()}, true
}

// EnvProbe returns the first non-empty variable among Names. Mirror is
// consulted before the process environment, so values loaded from an env
// file or set by an embedder count even when os.Setenv was never called.
type EnvProbe struct {
	Names  []string
	Mirror map[string]string
	Lookup func(string) (string, bool)
}

// NewEnvProbe checks names in order against mirror, then os.LookupEnv
func NewEnvProbe(mirror map[string]string, names ...string) *EnvProbe {
	return &EnvProbe{Names: names, Mirror: mirror, Lookup: os.LookupEnv}
}

func (p *EnvProbe) Name() string { return strings.Join(p.Names, ",") }

func (p *EnvProbe) Probe(_ context.Context) (Credential, bool) {
	for _, name := range p.Names {
		if v, ok := p.lookup(name); ok {
			return Credential{Value: v, Source: EnvSource(name)}, true
		}
	}
	return Credential{}, false
}

func (p *EnvProbe) lookup(name string) (string, bool) {
	if v := strings.TrimSpace(p.Mirror[name]); v != "" {
		return v, true
	}
	lookup := p.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(name); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", false
}

var placeholders = map[string]struct{}{
	config.PlaceholderToken: {},
	"your_token_here":       {},
	"<your-token>":          {},
	"ghp_your_token":        {},
	"changeme":              {},
}

// IsPlaceholder reports whether v is one of the sample values shipped in
// starter configs and docs
func IsPlaceholder(v string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// ConfigProbe reads the token key from a config store
type ConfigProbe struct {
	Store config.Store
	Key   string
}

// NewConfigProbe reads config.KeyToken from store
func NewConfigProbe(store config.Store) *ConfigProbe {
	return &ConfigProbe{Store: store, Key: config.KeyToken}
}

func (p *ConfigProbe) Name() string { return "config" }

func (p *ConfigProbe) Probe(_ context.Context) (Credential, bool) {
	if p.Store == nil {
		return Credential{}, false
	}
	v, ok := p.Store.Get(p.Key)
	if !ok || IsPlaceholder(v) {
		return Credential{}, false
	}
	return Credential{Value: v, Source: ConfigSource()}, true
}
