package config

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/go-version"

	"github.com/corpeningc/rpdflow/internal/errors"
)

// scriptToolsSince is the first tool release shipping per-command wrapper
// scripts under <client>/bi/bitools/bin. Earlier releases need the bi-init
// environment.
var scriptToolsSince = version.Must(version.NewVersion("12"))

// ParseToolVersion parses the configured tool version.
func ParseToolVersion(v string) (*version.Version, error) {
	if v == "" {
		return nil, errors.NewConfigError("tool.version", v, fmt.Errorf("must be set"))
	}
	parsed, err := version.NewVersion(v)
	if err != nil {
		return nil, errors.NewConfigError("tool.version", v, err)
	}
	return parsed, nil
}

// ScriptTools reports whether commands resolve to wrapper scripts rather than
// to binaries found through the bi-init environment.
func (t Tool) ScriptTools() bool {
	v, err := ParseToolVersion(t.Version)
	if err != nil {
		return true
	}
	return v.GreaterThanOrEqual(scriptToolsSince)
}

// Command returns the executable for one of the artifact tools, e.g.
// "comparerpd", "patchrpd" or "admintool".
func (t Tool) Command(name string) string {
	if !t.ScriptTools() {
		if name == "admintool" {
			return "admintool.exe"
		}
		return name
	}

	ext := ".sh"
	if runtime.GOOS == "windows" {
		ext = ".cmd"
	}
	return filepath.Join(t.Client, "bi", "bitools", "bin", name+ext)
}

// InitScript returns the bi-init script that prepares the environment for
// releases older than 12. It is empty when no script is needed.
func (t Tool) InitScript() string {
	if t.ScriptTools() {
		return ""
	}

	if runtime.GOOS != "windows" {
		return filepath.Join(t.Home, "instances", "instance1", "bifoundation", "OracleBIApplication",
			"coreapplication", "setup", "bi-init.sh")
	}
	if t.ClientOnly {
		return filepath.Join(t.Home, "oraclebi", "orahome", "bifoundation", "server", "bin", "bi_init.bat")
	}
	return filepath.Join(t.Home, "instances", "instance1", "bifoundation", "OracleBIApplication",
		"coreapplication", "setup", "bi-init.cmd")
}
