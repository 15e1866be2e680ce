package orchestrator

import "testing"

func TestDeriveTargetType(t *testing.T) {
	cases := []struct {
		name   string
		nm     string
		labels map[string]string
		want   string
	}{
		{"target-type label wins", "anything", map[string]string{labelTargetType: "wine"}, "wine"},
		{"component label used when no target-type label", "anything", map[string]string{labelComponent: "android"}, "android"},
		{"target-type label beats component label", "anything", map[string]string{
			labelTargetType: "wine", labelComponent: "android",
		}, "wine"},
		{"android-aind tried before android", "legacy-use-android-aind-target-1", nil, "android-aind"},
		{"plain android name", "legacy-use-android-target-1", nil, "android"},
		{"windows-xp tried before windows", "legacy-use-windows-xp-kubevirt", nil, "windows-xp"},
		{"windows-10 tried before windows", "legacy-use-windows-10-kubevirt", nil, "windows-10"},
		{"plain windows name", "legacy-use-windows-kubevirt", nil, "windows"},
		{"macos-mojave name", "legacy-use-macos-mojave-kubevirt", nil, "macos-mojave"},
		{"dosbox name", "legacy-use-dosbox-target-1", nil, "dosbox"},
		{"wine name", "legacy-use-wine-target-1", nil, "wine"},
		{"linux name", "legacy-use-linux-target-1", nil, "linux"},
		{"no label, no match", "unrelated-workload", nil, ""},
		{"name match is lowercased", "LEGACY-USE-WINE-TARGET-1", nil, "wine"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := deriveTargetType(c.nm, c.labels); got != c.want {
				t.Errorf("deriveTargetType(%q, %v) = %q, want %q", c.nm, c.labels, got, c.want)
			}
		})
	}
}

func TestDeriveScalable(t *testing.T) {
	cases := []struct {
		name   string
		nm     string
		labels map[string]string
		want   bool
	}{
		{"scalable label true", "anything", map[string]string{labelScalable: "true"}, true},
		{"scalable label false is not enough on its own", "anything", map[string]string{labelScalable: "false"}, false},
		{"-target name substring pattern", "legacy-use-wine-target-1", nil, true},
		{"-kubevirt name suffix pattern", "legacy-use-windows-kubevirt", nil, true},
		{"unrelated name", "postgres-primary", nil, false},
		{"uppercase name still matches", "LEGACY-USE-WINE-TARGET-1", nil, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := deriveScalable(c.nm, c.labels); got != c.want {
				t.Errorf("deriveScalable(%q, %v) = %v, want %v", c.nm, c.labels, got, c.want)
			}
		})
	}
}
