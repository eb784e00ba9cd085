package config

import (
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// GenerateConfigContent returns the embedded defaults with every value
// commented out, suitable as a starting point for a tree's config.toml.
func GenerateConfigContent() string {
	return commentOutConfigValues(GetDefaultsContent())
}

// Render encodes the effective configuration as TOML.
func Render(cfg *Config) (string, error) {
	data, err := toml.Marshal(cfg.toMap())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// commentOutConfigValues comments out assignment lines, keeping blank lines,
// comments and section headers as they are.
func commentOutConfigValues(content string) string {
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "", strings.HasPrefix(trimmed, "#"):
			result = append(result, line)
		case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
			result = append(result, line)
		default:
			result = append(result, "# "+line)
		}
	}

	return strings.Join(result, "\n")
}
