package pathutil

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// Expand resolves environment variables and "~/" home shortcuts in
// configured paths (socket path, audit log, daemon home). An empty
// path expands to the empty string.
func Expand(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}

	expanded := os.ExpandEnv(trimmed)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := homeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if expanded == "~" {
			expanded = home
		} else {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~/"))
		}
	}

	return filepath.Clean(expanded), nil
}

// homeDir resolves the user's home directory, refusing values that are
// themselves unexpanded tildes.
func homeDir() (string, error) {
	if home, err := os.UserHomeDir(); err == nil && usableHome(home) {
		return strings.TrimSpace(home), nil
	}
	if current, err := user.Current(); err == nil && usableHome(current.HomeDir) {
		return strings.TrimSpace(current.HomeDir), nil
	}

	envHome := strings.TrimSpace(os.Getenv("HOME"))
	if envHome == "" {
		return "", fmt.Errorf("HOME is not set")
	}
	if !usableHome(envHome) {
		return "", fmt.Errorf("HOME is not fully resolved: %s", envHome)
	}
	return envHome, nil
}

func usableHome(home string) bool {
	trimmed := strings.TrimSpace(home)
	return trimmed != "" && trimmed != "~" && !strings.HasPrefix(trimmed, "~/")
}
