package access

// Level is a project access level. Levels form a total order of privilege:
// creator > admin > collaborator > viewer.
type Level string

const (
	Creator      Level = "creator"
	Admin        Level = "admin"
	Collaborator Level = "collaborator"
	Viewer       Level = "viewer"
)

// Rank returns the privilege rank of a level. Unknown levels rank 0, below
// every valid level, so a missing or garbage permission never authorizes.
func Rank(level Level) int {
	switch level {
	case Creator:
		return 4
	case Admin:
		return 3
	case Collaborator:
		return 2
	case Viewer:
		return 1
	default:
		return 0
	}
}

func Valid(level Level) bool {
	return Rank(level) > 0
}

// IsAtLeast reports whether level meets or exceeds min in the privilege
// order. Absent or unknown levels always fail.
func IsAtLeast(level, min Level) bool {
	rank := Rank(level)
	return rank > 0 && rank >= Rank(min)
}

// Grantable reports whether a granter may hand out the level. Only valid
// levels strictly below the granter's own qualify; privilege cannot be
// delegated upward or sideways, and creator is never grantable.
func Grantable(granter, level Level) bool {
	if !Valid(level) || level == Creator {
		return false
	}
	return Rank(level) < Rank(granter)
}

func Normalize(raw string) Level {
	switch Level(raw) {
	case Creator, Admin, Collaborator, Viewer:
		return Level(raw)
	default:
		return Viewer
	}
}
