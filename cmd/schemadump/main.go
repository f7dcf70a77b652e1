// Command schemadump prints the record store schema produced by the embedded
// migrations, for review alongside migration changes.
//
//	go run ./cmd/schemadump > schema.sql
package main

import (
	"fmt"
	"os"

	"docstage/internal/database"
	"docstage/internal/database/migrations"
)

func main() {
	db, err := database.OpenConnection(":memory:")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := migrations.MigrateUp(db); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	schema, err := migrations.Schema(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to extract schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Print("-- Generated from internal/database/migrations/files/*.sql. Do not edit.\n\n" + schema)
}
