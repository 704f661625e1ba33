package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
	}{
		{
			name: "valid env file",
			content: `# Comment line
GITHUB_TOKEN=ghp_abc

GH_TOKEN="quoted value"
OTHER='single quoted'
export EXPORTED=yes
`,
			want: map[string]string{
				"GITHUB_TOKEN": "ghp_abc",
				"GH_TOKEN":     "quoted value",
				"OTHER":        "single quoted",
				"EXPORTED":     "yes",
			},
		},
		{
			name:    "only comments",
			content: "# nothing here\n\n",
			want:    map[string]string{},
		},
		{
			name: "invalid lines are skipped",
			content: `VALID=1
INVALID LINE WITHOUT EQUALS
=NO_KEY
BAD KEY=x
EMPTY=
`,
			want: map[string]string{"VALID": "1", "EMPTY": ""},
		},
		{
			name:    "value containing equals",
			content: "URL=https://example.com/?a=b\n",
			want:    map[string]string{"URL": "https://example.com/?a=b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, ".env", tt.content)
			got, err := LoadEnvFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadEnvFile_EmptyPath(t *testing.T) {
	got, err := LoadEnvFile("")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadEnvFile_Missing(t *testing.T) {
	_, err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
