package db

import "gorm.io/gorm"

// LockingClause returns the row-locking suffix for a raw SELECT used to
// serialize writers on a single row. sqlite has no FOR UPDATE; its writers
// already serialize at the database level.
func LockingClause(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	switch conn.Dialector.Name() {
	case "postgres", "mysql":
		return " FOR UPDATE"
	default:
		return ""
	}
}
