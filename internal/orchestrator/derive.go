package orchestrator

import "strings"

const (
	labelTargetType = "legacy-use.target-type"
	labelComponent  = "app.kubernetes.io/component"
	labelScalable   = "legacy-use.scalable"
)

// deriveTargetType computes a workload's target type by consulting, in
// order: the target-type label, the kubernetes component label, then a
// substring match on name.
func deriveTargetType(name string, labels map[string]string) string {
	if v := labels[labelTargetType]; v != "" {
		return v
	}
	if v := labels[labelComponent]; v != "" {
		return v
	}
	lower := strings.ToLower(name)
	for _, candidate := range knownTargetTypesByNameSpecificity {
		if strings.Contains(lower, candidate) {
			return candidate
		}
	}
	return ""
}

// knownTargetTypesByNameSpecificity is ordered so more specific substrings
// (android-aind, windows-xp, windows-10) are tried before their shorter
// prefixes (android, windows), avoiding a wrong coarse match.
var knownTargetTypesByNameSpecificity = []string{
	"android-aind", "android", "windows-xp", "windows-10", "windows",
	"macos-mojave", "dosbox", "wine", "linux",
}

// deriveScalable reports whether a workload is eligible for pool
// allocation, by label or by a known scalable naming pattern.
func deriveScalable(name string, labels map[string]string) bool {
	if labels[labelScalable] == "true" {
		return true
	}
	lower := strings.ToLower(name)
	return strings.Contains(lower, "-target") || strings.Contains(lower, "-kubevirt")
}
