package credential

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/config"
	"github.com/takutakahashi/ghclient/pkg/logger"
)

type fakeRunner struct {
	res   RunResult
	err   error
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, argv []string) (RunResult, error) {
	f.calls = append(f.calls, argv)
	return f.res, f.err
}

func cliWith(token string) *fakeRunner {
	if token == "" {
		return &fakeRunner{res: RunResult{ExitCode: 1, Stderr: "not logged in"}}
	}
	return &fakeRunner{res: RunResult{Stdout: token + "\n"}}
}

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func newTestResolver(cli string, env map[string]string, store config.Store) *Resolver {
	return NewResolver(Options{
		Runner:     cliWith(cli),
		LookupEnv:  envFrom(env),
		Store:      store,
		ConfigPath: "/home/dev/.config/ghclient/config.yaml",
		Logger:     logger.Nop(),
	})
}

func TestResolve_PriorityAcrossAllCombinations(t *testing.T) {
	for mask := 0; mask < 16; mask++ {
		hasCLI := mask&1 != 0
		hasGitHubToken := mask&2 != 0
		hasGHToken := mask&4 != 0
		hasConfig := mask&8 != 0

		name := fmt.Sprintf("cli=%t,GITHUB_TOKEN=%t,GH_TOKEN=%t,config=%t", hasCLI, hasGitHubToken, hasGHToken, hasConfig)
		t.Run(name, func(t *testing.T) {
			cli := ""
			if hasCLI {
				cli = "cli-token"
			}
			env := map[string]string{}
			if hasGitHubToken {
				env[EnvGitHubToken] = "github-token"
			}
			if hasGHToken {
				env[EnvGHToken] = "gh-token"
			}
			store := config.MapStore{}
			if hasConfig {
				store["token"] = "config-token"
			}

			var wantValue, wantSource string
			switch {
			case hasCLI:
				wantValue, wantSource = "cli-token", "GitHub CLI"
			case hasGitHubToken:
				wantValue, wantSource = "github-token", "GITHUB_TOKEN"
			case hasGHToken:
				wantValue, wantSource = "gh-token", "GH_TOKEN"
			case hasConfig:
				wantValue, wantSource = "config-token", "config"
			}

			r := newTestResolver(cli, env, store)
			got, err := r.Resolve(context.Background(), false)
			require.NoError(t, err)
			assert.Equal(t, wantValue, got)
			assert.Equal(t, wantSource, r.LastSource())
			assert.Equal(t, wantSource != "", r.IsAuthenticated())
		})
	}
}

func TestResolve_SilentWhenNotRequired(t *testing.T) {
	r := newTestResolver("", nil, nil)

	got, err := r.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, r.LastSource())
	assert.False(t, r.IsAuthenticated())
}

func TestResolve_RequiredFailsWithGuidance(t *testing.T) {
	r := newTestResolver("", nil, nil)

	_, err := r.Resolve(context.Background(), true)
	require.Error(t, err)
	assert.True(t, apierror.IsAuthentication(err))
	assert.Contains(t, err.Error(), "gh auth login")
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")
	assert.Contains(t, err.Error(), "GH_TOKEN")
	assert.Contains(t, err.Error(), "/home/dev/.config/ghclient/config.yaml")
}

func TestResolve_ShortCircuitsAfterCLI(t *testing.T) {
	runner := cliWith("cli-token")
	lookups := 0
	r := NewResolver(Options{
		Runner: runner,
		LookupEnv: func(string) (string, bool) {
			lookups++
			return "", false
		},
		Logger: logger.Nop(),
	})

	_, err := r.Resolve(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"gh", "auth", "token"}}, runner.calls)
	assert.Zero(t, lookups)
}

func TestResolve_CLIWhitespaceOutputIsMiss(t *testing.T) {
	r := NewResolver(Options{
		Runner:    &fakeRunner{res: RunResult{Stdout: "  \n\t"}},
		LookupEnv: envFrom(map[string]string{EnvGHToken: "gh-token"}),
		Logger:    logger.Nop(),
	})

	got, err := r.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "gh-token", got)
	assert.Equal(t, "GH_TOKEN", r.LastSource())
}

func TestResolve_PlaceholderConfigIsAbsent(t *testing.T) {
	r := newTestResolver("", nil, config.MapStore{"token": config.PlaceholderToken})

	got, err := r.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, r.LastSource())
}

func TestResolve_EnvMirrorCountsWithoutProcessEnv(t *testing.T) {
	r := NewResolver(Options{
		DisableCLI: true,
		EnvMirror:  map[string]string{EnvGHToken: "mirrored"},
		LookupEnv:  envFrom(nil),
		Logger:     logger.Nop(),
	})

	got, err := r.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "mirrored", got)
	assert.Equal(t, "GH_TOKEN", r.LastSource())
}

func TestResolve_DisableCLISkipsRunner(t *testing.T) {
	runner := cliWith("cli-token")
	r := NewResolver(Options{
		Runner:     runner,
		DisableCLI: true,
		LookupEnv:  envFrom(nil),
		Store:      config.MapStore{"token": "from-config"},
		Logger:     logger.Nop(),
	})

	got, err := r.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "from-config", got)
	assert.Empty(t, runner.calls)
}

func TestResolver_Reset(t *testing.T) {
	r := newTestResolver("cli-token", nil, nil)
	_, err := r.Resolve(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "GitHub CLI", r.LastSource())

	r.Reset()
	assert.Empty(t, r.LastSource())
}

func TestResolver_SharedMemo(t *testing.T) {
	memo := &Memo{}
	a := NewResolver(Options{DisableCLI: true, LookupEnv: envFrom(map[string]string{EnvGitHubToken: "x"}), Memo: memo, Logger: logger.Nop()})
	b := NewResolver(Options{DisableCLI: true, LookupEnv: envFrom(nil), Memo: memo, Logger: logger.Nop()})

	_, err := a.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "GITHUB_TOKEN", b.LastSource())
}

func TestResolver_ConcurrentResolve(t *testing.T) {
	r := NewResolver(Options{DisableCLI: true, LookupEnv: envFrom(map[string]string{EnvGitHubToken: "x"}), Logger: logger.Nop()})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Resolve(context.Background(), false)
			_ = r.LastSource()
		}()
	}
	wg.Wait()
	assert.Equal(t, "GITHUB_TOKEN", r.LastSource())
}

func TestResolver_AuthenticationStatus(t *testing.T) {
	tests := []struct {
		name     string
		cli      string
		env      map[string]string
		store    config.Store
		contains string
	}{
		{name: "none", contains: "60 requests/hour"},
		{name: "cli", cli: "t", contains: "GitHub CLI"},
		{name: "GITHUB_TOKEN", env: map[string]string{EnvGitHubToken: "t"}, contains: "GITHUB_TOKEN environment variable"},
		{name: "GH_TOKEN", env: map[string]string{EnvGHToken: "t"}, contains: "GH_TOKEN environment variable"},
		{name: "config", store: config.MapStore{"token": "t"}, contains: "config file /home/dev/.config/ghclient/config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(tt.cli, tt.env, tt.store)
			_, err := r.Resolve(context.Background(), false)
			require.NoError(t, err)
			assert.Contains(t, r.AuthenticationStatus(), tt.contains)
		})
	}
}

func TestResolver_AuthenticationHelp(t *testing.T) {
	help := newTestResolver("", nil, nil).AuthenticationHelp()

	for _, want := range []string{"gh auth login", "GITHUB_TOKEN", "GH_TOKEN", "/home/dev/.config/ghclient/config.yaml", "5,000", "optional"} {
		assert.Contains(t, help, want)
	}
}

func TestResolver_SatisfiesAuthState(t *testing.T) {
	var _ apierror.AuthState = (*Resolver)(nil)

	r := newTestResolver("", nil, nil)
	e := apierror.NewClassifier(r).Classify(apierror.Response{StatusCode: 401})
	assert.Contains(t, e.Message, "gh auth login")
}

func TestFromConfig_LoadsEnvFileMirror(t *testing.T) {
	path := t.TempDir() + "/.env"
	require.NoError(t, writeTestFile(path, "GH_TOKEN=from-env-file\n"))

	cfg := config.DefaultConfig()
	cfg.CLI.Disabled = true
	cfg.EnvFile = path

	r, err := FromConfig(cfg, config.MapStore{}, "")
	require.NoError(t, err)
	for _, p := range r.probes {
		if env, ok := p.(*EnvProbe); ok {
			env.Lookup = envFrom(nil)
		}
	}

	got, err := r.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "from-env-file", got)
}

func TestFromConfig_MissingEnvFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.EnvFile = t.TempDir() + "/missing.env"

	_, err := FromConfig(cfg, nil, "")
	assert.Error(t, err)
}
