package mysql

import (
	"fmt"
	"strings"
)

const maxIdentifierLen = 64

// quoteTableName validates table (optionally schema.table) and returns it
// with every part backtick-quoted.
func quoteTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
	}
	quoted := make([]string, 0, len(parts))
	for _, part := range parts {
		if !validIdentifier(part) {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
		quoted = append(quoted, "`"+part+"`")
	}

	return strings.Join(quoted, "."), nil
}

func validIdentifier(part string) bool {
	if part == "" || len(part) > maxIdentifierLen {
		return false
	}
	for _, r := range part {
		switch {
		case r == '_', r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}

	return true
}
