//go:build !cgo_sqlite

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// initDB opens the build cache database using the pure-Go sqlite driver.
func initDB(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite", dataSource)
}
