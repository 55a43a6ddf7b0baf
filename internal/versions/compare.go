package versions

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// IsNewerVersion reports whether newVersion is strictly greater than oldVersion. Development
// builds ("build-<commit>") are never newer or older than anything. Non-semver strings fall
// back to lexicographic comparison.
func IsNewerVersion(newVersion, oldVersion string) bool {
	if isDevBuild(newVersion) || isDevBuild(oldVersion) {
		return false
	}

	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)
	if errNew != nil || errOld != nil {
		return newVersion > oldVersion
	}
	return newSemver.GreaterThan(oldSemver)
}

func isDevBuild(version string) bool {
	return version == "dev" || strings.HasPrefix(version, "build-")
}
