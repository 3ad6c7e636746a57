package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Environment is the deployment named by APP_ENV.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

var shortEnvNames = map[string]Environment{
	"dev":  Development,
	"stag": Staging,
	"prod": Production,
}

// CurrentEnvironment reads APP_ENV; unset means development.
func CurrentEnvironment() Environment {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		return Development
	}
	if full, ok := shortEnvNames[env]; ok {
		return full
	}
	return Environment(env)
}

// RequiresConfigFile reports whether starting without a config file is an
// error in this environment.
func (e Environment) RequiresConfigFile() bool {
	return e == Production || e == Staging
}

// ResolvePath returns config/config.<env>.yml in place of the default file
// when APP_ENV names a deployment and that file exists. Explicit paths are
// kept as given.
func ResolvePath(path string) string {
	if path == "" {
		path = DefaultPath
	}
	env := CurrentEnvironment()
	if path != DefaultPath || env == Development {
		return path
	}
	candidate := filepath.Join(filepath.Dir(DefaultPath), "config."+string(env)+".yml")
	if _, err := os.Stat(candidate); err != nil {
		return path
	}
	return candidate
}
