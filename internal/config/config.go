package config

import (
	"errors"
	"io/fs"
	"os"

	"sigs.k8s.io/yaml"
)

// FilePath is the default location of the optional config file.
const FilePath = ".hubmirror.yaml"

type ECR struct {
	AccountID  string `json:"accountID"`
	Region     string `json:"region"`
	CreateRepo *bool  `json:"createRepo"`
	// LifecyclePolicy contains optional policy JSON applied when repositories are created.
	LifecyclePolicy string `json:"lifecyclePolicy"`
}

type Docker struct {
	Insecure bool `json:"insecure"`
	// Username/Password should come from environment variables, not the file.
}

// Config is the optional file-based configuration. Environment overrides and
// command-line flags take precedence over every field here.
type Config struct {
	TargetKind   string `json:"targetKind"` // docker | ecr
	Registry     string `json:"registry"`
	SourceHub    string `json:"sourceHub"`
	TagPattern   string `json:"tagPattern"`
	MinVersion   string `json:"minVersion"`
	VersionRange string `json:"versionRange"`
	Force        bool   `json:"force"`
	DryRun       bool   `json:"dryRun"`
	Verbose      bool   `json:"verbose"`
	KeepGoing    bool   `json:"keepGoing"`
	Timeout      string `json:"timeout"`
	ECR          ECR    `json:"ecr"`
	Docker       Docker `json:"docker"`
}

// Load reads the config file at path. A missing or unreadable file is not an
// error; ok reports whether a file was actually loaded.
func Load(path string) (Config, bool, error) {
	var c Config
	b, err := os.ReadFile(path)
	if err != nil {
		// treat permission-denied like a missing file
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return c, false, nil
		}
		return c, false, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, false, err
	}
	return c, true, nil
}
