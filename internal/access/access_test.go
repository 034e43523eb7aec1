package access

import "testing"

func TestRankTotalOrder(t *testing.T) {
	ordered := []Level{Viewer, Collaborator, Admin, Creator}
	for i := 1; i < len(ordered); i++ {
		if Rank(ordered[i]) <= Rank(ordered[i-1]) {
			t.Fatalf("expected %s to outrank %s", ordered[i], ordered[i-1])
		}
	}
}

func TestIsAtLeast(t *testing.T) {
	cases := []struct {
		level Level
		min   Level
		want  bool
	}{
		{Creator, Viewer, true},
		{Creator, Creator, true},
		{Admin, Creator, false},
		{Admin, Admin, true},
		{Collaborator, Admin, false},
		{Collaborator, Collaborator, true},
		{Viewer, Collaborator, false},
		{Level(""), Viewer, false},
		{Level("owner"), Viewer, false},
	}
	for _, tc := range cases {
		if got := IsAtLeast(tc.level, tc.min); got != tc.want {
			t.Errorf("IsAtLeast(%q, %q) = %v, want %v", tc.level, tc.min, got, tc.want)
		}
	}
}

func TestGrantableExcludesOwnLevelAndAbove(t *testing.T) {
	cases := []struct {
		granter Level
		level   Level
		want    bool
	}{
		{Creator, Admin, true},
		{Creator, Collaborator, true},
		{Creator, Viewer, true},
		{Creator, Creator, false},
		{Admin, Admin, false},
		{Admin, Collaborator, true},
		{Admin, Viewer, true},
		{Collaborator, Viewer, true},
		{Viewer, Viewer, false},
		{Admin, Level("owner"), false},
	}
	for _, tc := range cases {
		if got := Grantable(tc.granter, tc.level); got != tc.want {
			t.Errorf("Grantable(%q, %q) = %v, want %v", tc.granter, tc.level, got, tc.want)
		}
	}
}

func TestNormalizeFallsBackToViewer(t *testing.T) {
	if Normalize("admin") != Admin {
		t.Fatalf("expected admin to survive normalization")
	}
	if Normalize("superuser") != Viewer {
		t.Fatalf("expected unknown level to normalize to viewer")
	}
}
