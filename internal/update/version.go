package update

import (
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// gitDescribePattern matches git describe output: v0.16.1-2-gabcdef or
// v0.16.1-2-gabcdef-dirty.
var gitDescribePattern = regexp.MustCompile(`-\d+-g[0-9a-f]+(-dirty)?$`)

// extractBaseSemver returns the numeric base of a version string, or ""
// when the string is not version-shaped at all (a bare hash, "dev", ...).
func extractBaseSemver(v string) string {
	v = strings.TrimPrefix(v, "v")
	if len(v) == 0 || v[0] < '0' || v[0] > '9' {
		return ""
	}
	if !strings.Contains(v, ".") {
		return ""
	}
	if idx := strings.Index(v, "-"); idx > 0 {
		v = v[:idx]
	}
	return v
}

// isDevBuildVersion reports whether the version is a dev build rather than
// a tagged release.
func isDevBuildVersion(v string) bool {
	v = strings.TrimPrefix(v, "v")
	if extractBaseSemver(v) == "" {
		return true
	}
	return gitDescribePattern.MatchString(v)
}

// isNewer reports whether v1 is newer than v2 under semver rules.
// Prereleases (-rc1) sort before their release; git-describe versions are
// compared as their base version.
func isNewer(v1, v2 string) bool {
	base1 := extractBaseSemver(v1)
	base2 := extractBaseSemver(v2)
	if base1 == "" || base2 == "" {
		return false
	}
	return semver.Compare(normalizeSemver(v1), normalizeSemver(v2)) > 0
}

// prereleaseNumericPattern matches prerelease identifiers of letters followed
// by digits ("rc10", "beta2") so the numeric part can be compared as a number.
// Anchored to avoid partial matches inside identifiers like "rc10a".
var prereleaseNumericPattern = regexp.MustCompile(`^([A-Za-z]+)(\d+)$`)

// normalizeSemver converts a version string to a canonical "v"-prefixed form
// for semver.Compare. Git-describe suffixes are stripped; prerelease tags
// like "rc10" become "rc.10" so that rc.10 sorts after rc.2 (semver compares
// "rc10" lexicographically, which would put it before "rc2").
func normalizeSemver(v string) string {
	v = strings.TrimPrefix(v, "v")

	if gitDescribePattern.MatchString(v) {
		v = gitDescribePattern.ReplaceAllString(v, "")
	}

	if idx := strings.Index(v, "-"); idx > 0 {
		v = v[:idx] + "-" + normalizePrereleaseIdentifiers(v[idx+1:])
	}

	return "v" + v
}

// normalizePrereleaseIdentifiers rewrites each dot-separated prerelease
// identifier like "rc10" as "rc.10". Identifiers whose numeric part has a
// leading zero are left alone; "rc.010" would not be valid semver.
func normalizePrereleaseIdentifiers(prerelease string) string {
	parts := strings.Split(prerelease, ".")
	var result []string
	for _, part := range parts {
		matches := prereleaseNumericPattern.FindStringSubmatch(part)
		if matches == nil {
			result = append(result, part)
			continue
		}
		letters, digits := matches[1], matches[2]
		if len(digits) > 1 && digits[0] == '0' {
			result = append(result, part)
		} else {
			result = append(result, letters, digits)
		}
	}
	return strings.Join(result, ".")
}
