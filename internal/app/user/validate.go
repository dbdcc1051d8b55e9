package user

const (
	// MinNameLength is the shortest accepted display name.
	MinNameLength = 3

	// MaxNameLength is the longest accepted display name.
	MaxNameLength = 20
)

// IsValidName reports whether name is 3-20 characters drawn only from ASCII letters and digits.
func IsValidName(name string) bool {
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return false
	}

	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}

	return true
}
