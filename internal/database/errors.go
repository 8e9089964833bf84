package database

import (
	"errors"
	"strings"
)

var (
	ErrNotInitialised   = errors.New("database not initialised")
	ErrSiteNotFound     = errors.New("site not found")
	ErrSiteExists       = errors.New("domain is already registered")
	ErrInvalidDomain    = errors.New("invalid domain")
	ErrInvalidIP        = errors.New("invalid IP address")
	ErrIPAlreadyBlocked = errors.New("IP address is already blocked for this site")
	ErrBlockedIPMissing = errors.New("blocked IP not found")
	ErrEmailTaken       = errors.New("email already in use")
	ErrUserNotFound     = errors.New("user not found")
)

// isUniqueConstraintError matches the duplicate-key wording of both postgres
// and sqlite.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "unique constraint failed")
}
