package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tinyland-inc/reefbot/pkg/config"
	"github.com/tinyland-inc/reefbot/pkg/llm"
)

const Logo = "🪸"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".reefbot", "config.json")
}

func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(GetConfigPath())
}

// CreateProvider builds the model backend named in the config.
func CreateProvider(cfg *config.Config) (llm.Provider, error) {
	p := cfg.Provider
	switch strings.ToLower(p.Name) {
	case "", "anthropic":
		return llm.NewAnthropicProvider(p.APIKey, p.APIBase, p.Model), nil
	case "openai":
		return llm.NewOpenAIProvider(p.APIKey, p.APIBase, p.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic or openai)", p.Name)
	}
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

// GetVersion returns the version string
func GetVersion() string {
	return version
}
