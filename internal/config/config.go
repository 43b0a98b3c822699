package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/corpeningc/rpdflow/internal/errors"
)

// Backend selects the version control flavour a workflow runs against.
type Backend string

const (
	BackendGit Backend = "git"
	BackendSVN Backend = "svn"
)

const (
	DefaultConfigFile     = "rpdflow.yaml"
	DefaultExtension      = ".rpd"
	DefaultConflictMarker = "Conflicts are found."
	envPrefix             = "RPDFLOW"
)

// Config is read once at startup and handed to every component constructor.
type Config struct {
	Backend  Backend `mapstructure:"backend"`
	StateDir string  `mapstructure:"stateDir"`
	Tool     Tool    `mapstructure:"tool"`
	Git      Git     `mapstructure:"git"`
	SVN      SVN     `mapstructure:"svn"`
}

// Tool locates the artifact compare/patch tooling and its shared credential.
type Tool struct {
	Version        string `mapstructure:"version"`
	Home           string `mapstructure:"home"`
	Client         string `mapstructure:"client"`
	ClientOnly     bool   `mapstructure:"clientOnly"`
	Credential     string `mapstructure:"credential"`
	Extension      string `mapstructure:"extension"`
	ConflictMarker string `mapstructure:"conflictMarker"`
	LogDir         string `mapstructure:"logDir"`
}

type Git struct {
	Exe           string `mapstructure:"exe"`
	Repo          string `mapstructure:"repo"`
	Artifact      string `mapstructure:"artifact"`
	Remote        string `mapstructure:"remote"`
	Develop       string `mapstructure:"develop"`
	Master        string `mapstructure:"master"`
	FeaturePrefix string `mapstructure:"featurePrefix"`
	ReleasePrefix string `mapstructure:"releasePrefix"`
	HotfixPrefix  string `mapstructure:"hotfixPrefix"`
}

type SVN struct {
	Bin               string `mapstructure:"bin"`
	BaseURL           string `mapstructure:"baseURL"`
	Trunk             string `mapstructure:"trunk"`
	Develop           string `mapstructure:"develop"`
	FeatureRoot       string `mapstructure:"featureRoot"`
	ReleaseRoot       string `mapstructure:"releaseRoot"`
	ReleaseHotfixRoot string `mapstructure:"releaseHotfixRoot"`
	HotfixRoot        string `mapstructure:"hotfixRoot"`
}

// keys lists every setting so that RPDFLOW_<SECTION>_<KEY> applies even when
// neither a default nor the file mentions it.
var keys = []string{
	"backend", "stateDir",
	"tool.version", "tool.home", "tool.client", "tool.clientOnly", "tool.credential",
	"tool.extension", "tool.conflictMarker", "tool.logDir",
	"git.exe", "git.repo", "git.artifact", "git.remote", "git.develop", "git.master",
	"git.featurePrefix", "git.releasePrefix", "git.hotfixPrefix",
	"svn.bin", "svn.baseURL", "svn.trunk", "svn.develop", "svn.featureRoot",
	"svn.releaseRoot", "svn.releaseHotfixRoot", "svn.hotfixRoot",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", string(BackendGit))
	v.SetDefault("tool.version", "12")
	v.SetDefault("tool.extension", DefaultExtension)
	v.SetDefault("tool.conflictMarker", DefaultConflictMarker)

	v.SetDefault("git.exe", "git")
	v.SetDefault("git.repo", ".")
	v.SetDefault("git.remote", "origin")
	v.SetDefault("git.develop", "develop")
	v.SetDefault("git.master", "master")
	v.SetDefault("git.featurePrefix", "feature/")
	v.SetDefault("git.releasePrefix", "release/")
	v.SetDefault("git.hotfixPrefix", "hotfix/")

	v.SetDefault("svn.bin", "svn")
	v.SetDefault("svn.trunk", "trunk")
	v.SetDefault("svn.develop", "branches/develop")
	v.SetDefault("svn.featureRoot", "branches/feature")
	v.SetDefault("svn.releaseRoot", "branches/release")
	v.SetDefault("svn.releaseHotfixRoot", "branches/release-hotfix")
	v.SetDefault("svn.hotfixRoot", "branches/hotfix")
}

// Load reads the configuration file at path. A missing file is only an error
// when the path was given explicitly; otherwise defaults and RPDFLOW_*
// environment overrides apply.
func Load(path string, explicit bool) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.NewConfigError(key, "", err)
		}
	}

	if path == "" {
		path = DefaultConfigFile
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), os.IsNotExist(err):
			if explicit {
				return nil, errors.NewConfigError("config", path, fmt.Errorf("file not found"))
			}
		default:
			return nil, errors.NewConfigError("config", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigError("config", path, err)
	}

	if err := cfg.normalise(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalise() error {
	c.Backend = Backend(strings.ToLower(string(c.Backend)))

	if c.Tool.Extension != "" && !strings.HasPrefix(c.Tool.Extension, ".") {
		c.Tool.Extension = "." + c.Tool.Extension
	}

	if c.StateDir == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			cache = os.TempDir()
		}
		c.StateDir = filepath.Join(cache, "rpdflow")
	}

	if c.Tool.LogDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.NewConfigError("tool.logDir", "", err)
		}
		c.Tool.LogDir = wd
	}

	if c.Tool.Home != "" {
		home, err := filepath.Abs(c.Tool.Home)
		if err != nil {
			return errors.NewConfigError("tool.home", c.Tool.Home, err)
		}
		c.Tool.Home = home
	}

	switch {
	case c.Tool.Client != "":
		client, err := filepath.Abs(c.Tool.Client)
		if err != nil {
			return errors.NewConfigError("tool.client", c.Tool.Client, err)
		}
		c.Tool.Client = client
	case c.Tool.ClientOnly:
		c.Tool.Client = c.Tool.Home
	case c.Tool.Home != "":
		c.Tool.Client = filepath.Join(c.Tool.Home, "user_projects", "domains")
	}

	if c.Backend == BackendSVN {
		c.SVN.BaseURL = strings.TrimRight(c.SVN.BaseURL, "/")
	}

	return nil
}

// Validate checks the settings a workflow action depends on. needsBackend is
// false for a standalone merge, which never touches version control.
func (c *Config) Validate(needsBackend bool) error {
	if c.Tool.Extension == "" {
		return errors.NewConfigError("tool.extension", "", fmt.Errorf("must not be empty"))
	}
	if c.Tool.ConflictMarker == "" {
		return errors.NewConfigError("tool.conflictMarker", "", fmt.Errorf("must not be empty"))
	}
	if _, err := ParseToolVersion(c.Tool.Version); err != nil {
		return err
	}

	if !needsBackend {
		return nil
	}

	switch c.Backend {
	case BackendGit:
		return c.Git.validate()
	case BackendSVN:
		return c.SVN.validate()
	default:
		return errors.NewConfigError("backend", string(c.Backend), fmt.Errorf("must be %q or %q", BackendGit, BackendSVN))
	}
}

func (g Git) validate() error {
	required := [][2]string{
		{"git.exe", g.Exe},
		{"git.repo", g.Repo},
		{"git.artifact", g.Artifact},
		{"git.develop", g.Develop},
		{"git.master", g.Master},
	}
	if err := requireAll(required); err != nil {
		return err
	}
	if g.Develop == g.Master {
		return errors.NewConfigError("git.develop", g.Develop, fmt.Errorf("must differ from git.master"))
	}
	if filepath.IsAbs(g.Artifact) {
		return errors.NewConfigError("git.artifact", g.Artifact, fmt.Errorf("must be relative to git.repo"))
	}
	return nil
}

func (s SVN) validate() error {
	required := [][2]string{
		{"svn.bin", s.Bin},
		{"svn.baseURL", s.BaseURL},
		{"svn.trunk", s.Trunk},
		{"svn.develop", s.Develop},
		{"svn.featureRoot", s.FeatureRoot},
		{"svn.releaseRoot", s.ReleaseRoot},
		{"svn.releaseHotfixRoot", s.ReleaseHotfixRoot},
		{"svn.hotfixRoot", s.HotfixRoot},
	}
	return requireAll(required)
}

func requireAll(values [][2]string) error {
	for _, kv := range values {
		if strings.TrimSpace(kv[1]) == "" {
			return errors.NewConfigError(kv[0], "", fmt.Errorf("must be set"))
		}
	}
	return nil
}
