package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/takutakahashi/ghclient/pkg/logger"
)

// LoadEnvFile parses a dotenv-style KEY=VALUE file into a map. It feeds the
// environment mirror that the env credential probe consults before the
// process environment. Malformed lines are skipped with a warning.
func LoadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	log := logger.Named("config")
	vars := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			log.Warn().Str("path", path).Int("line", lineNum).Msg("env file line without '=' skipped")
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		if key == "" || strings.ContainsAny(key, " \t") {
			log.Warn().Str("path", path).Int("line", lineNum).Msg("env file line with invalid key skipped")
			continue
		}
		vars[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading env file %s: %w", path, err)
	}
	return vars, nil
}
