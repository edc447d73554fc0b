// Package manifest reads the declarative release manifest. The manifest
// carries everything the installer script and the old batch file had
// hardcoded: application metadata, file staging rules, and shortcut
// declarations.
package manifest

import (
	"os"

	"github.com/Masterminds/semver"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// VersionAuto asks the pipeline to detect the version by running the
// packaged executable instead of trusting the manifest.
const VersionAuto = "auto"

// App is the application descriptor substituted into the installer
// script.
type App struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	Publisher  string `yaml:"publisher"`
	Author     string `yaml:"author"`
	URL        string `yaml:"url"`
	AppID      string `yaml:"app_id"`
	ExeName    string `yaml:"exe_name"`
	Icon       string `yaml:"icon"`
	EntryPoint string `yaml:"entry_point"`
}

// StagingRule is one declarative file-copy directive: source relative to
// the distribution directory, dest relative to the install directory.
type StagingRule struct {
	Source    string `yaml:"source"`
	Dest      string `yaml:"dest"`
	Recursive bool   `yaml:"recursive"`
}

// Shortcuts declares the installer's optional shortcuts. The start menu
// entry is always created; the desktop icon is gated on a user-selected
// install task.
type Shortcuts struct {
	DesktopTask bool `yaml:"desktop_task"`
}

type Manifest struct {
	App             App           `yaml:"app"`
	Staging         []StagingRule `yaml:"staging"`
	Shortcuts       Shortcuts     `yaml:"shortcuts"`
	RunAfterInstall bool          `yaml:"run_after_install"`
}

// Load reads and validates a manifest. Validation failures are fatal
// before the pipeline mutates anything on disk.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrapf(err, "parsing manifest %s", path)
	}

	if err := m.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validating manifest %s", path)
	}

	return &m, nil
}

func (m *Manifest) Validate() error {
	if m.App.Name == "" {
		return errors.New("app name is required")
	}

	if m.App.Version == "" {
		return errors.New("app version is required")
	}
	if m.App.Version != VersionAuto {
		if _, err := semver.NewVersion(m.App.Version); err != nil {
			return errors.Wrapf(err, "app version %q is not semver", m.App.Version)
		}
	}

	if m.App.ExeName == "" {
		return errors.New("app exe_name is required")
	}

	// Empty is fine, a stable id gets derived from the name. But a
	// malformed one would produce a broken upgrade story.
	if m.App.AppID != "" {
		if _, err := uuid.Parse(m.App.AppID); err != nil {
			return errors.Wrapf(err, "app_id %q is not a GUID", m.App.AppID)
		}
	}

	if len(m.Staging) == 0 {
		return errors.New("at least one staging rule is required")
	}
	for i, rule := range m.Staging {
		if rule.Source == "" {
			return errors.Errorf("staging rule %d has no source", i)
		}
		if rule.Dest == "" {
			return errors.Errorf("staging rule %d has no dest", i)
		}
	}

	return nil
}
