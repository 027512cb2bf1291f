package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

const devBuild = "main"

// CheckCompatibility reports whether a configuration that declares
// configVersion can run on an engine built as engineVersion. Major and minor
// must match; patches may differ. An empty configVersion or a "main" build on
// either side skips the check.
func CheckCompatibility(engineVersion, configVersion string) error {
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	configVersion = strings.TrimPrefix(configVersion, "v")

	if configVersion == "" || engineVersion == devBuild || configVersion == devBuild {
		return nil
	}

	engine, err := semver.NewVersion(engineVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid engine version %q", engineVersion)
	}

	config, err := semver.NewVersion(configVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid config version %q", configVersion)
	}

	if engine.Major() != config.Major() || engine.Minor() != config.Minor() {
		return errors.Newf(errors.ErrCodeVersionMismatch,
			"config targets engine %d.%d.x but this engine is %s",
			config.Major(), config.Minor(), engine.String())
	}

	return nil
}
