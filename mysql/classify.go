package mysql

import (
	"database/sql/driver"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/velmie/lordn"
)

// Server error numbers worth another attempt.
const (
	erTooManyConnections = 1040
	erLockWaitTimeout    = 1205
	erLockDeadlock       = 1213
)

// wrap prefixes err with op and marks lock contention and dropped connections
// as transient so the pipeline retry policy picks them up.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("lordn mysql: %s failed: %w", op, err)
	if isTransient(err) {
		return lordn.NewTransientError(wrapped)
	}

	return wrapped
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, gomysql.ErrInvalidConn) {
		return true
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erTooManyConnections, erLockWaitTimeout, erLockDeadlock:
			return true
		}
	}

	return false
}
