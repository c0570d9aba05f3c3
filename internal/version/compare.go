package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckVersionCompatibility checks if the engine and a risk-limits document
// are compatible. Limits documents declare the engine version they were
// written against; loading limits written for a different major or minor
// version is refused so that semantic changes to a limit never apply
// silently.
//
// Compatibility Rules:
//   - If either version is "main" (development build), compatibility check is skipped
//   - Major versions must match exactly
//   - Minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 is compatible with 1.2.5)
func CheckVersionCompatibility(engineVersion, limitsVersion string) error {
	// Strip 'v' prefix if present for consistency
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	limitsVersion = strings.TrimPrefix(limitsVersion, "v")

	// Skip version check for "main" (development builds)
	if engineVersion == "main" || limitsVersion == "main" {
		return nil
	}

	engineSemver, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("invalid engine version '%s': %w", engineVersion, err)
	}

	limitsSemver, err := semver.NewVersion(limitsVersion)
	if err != nil {
		return fmt.Errorf("invalid limits version '%s': %w", limitsVersion, err)
	}

	if engineSemver.Major() != limitsSemver.Major() {
		return fmt.Errorf("major version mismatch: engine is %d.x.x but limits were written for %d.x.x",
			engineSemver.Major(), limitsSemver.Major())
	}

	if engineSemver.Minor() != limitsSemver.Minor() {
		return fmt.Errorf("minor version mismatch: engine is %d.%d.x but limits were written for %d.%d.x",
			engineSemver.Major(), engineSemver.Minor(),
			limitsSemver.Major(), limitsSemver.Minor())
	}

	// Patch versions can differ, so we're compatible
	return nil
}
