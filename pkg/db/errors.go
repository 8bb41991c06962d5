package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// IsUniqueViolation reports whether err is a unique constraint violation from
// any supported driver. When constraintName is provided the violated
// constraint or column must mention it.
func IsUniqueViolation(err error, constraintName string) bool {
	return isViolation(err, pkgerrors.SQLStateUniqueViolation, constraintName)
}

func isViolation(err error, state, constraintName string) bool {
	if err == nil {
		return false
	}
	d := pkgerrors.Dump(err)
	if d.PGCode != state {
		return false
	}
	if constraintName == "" {
		return true
	}
	return strings.Contains(d.PGConstraint, constraintName) || strings.Contains(d.PGColumn, constraintName)
}
