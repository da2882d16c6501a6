// Package main is a repair tool for dirty migration state in the directory
// database. Dirty state occurs when golang-migrate marks a version as in
// progress (dirty=true) but the run was interrupted before it completed. This
// tool connects with the server's configuration and re-records the current
// version as clean so that the next `server migrate up` can proceed, avoiding
// the "Dirty database version" error that otherwise blocks startup.
//
// Usage:
//
//	fix-migration [version]
//
// Without an argument the current version is kept; pass a lower version to
// mark the interrupted migration as not applied.
package main

import (
	"log"
	"os"
	"strconv"

	"github.com/org-directory/org-directory/internal/config"
	"github.com/org-directory/org-directory/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Connected to database successfully")

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	target := int(version)
	if len(os.Args) > 1 {
		if target, err = strconv.Atoi(os.Args[1]); err != nil || target < 0 {
			log.Fatalf("Invalid version %q", os.Args[1])
		}
	}

	if !dirty && target == int(version) {
		log.Println("Migration state is already clean")
		return
	}

	log.Printf("Forcing migration version %d...", target)
	if err := db.ForceMigrationVersion(database, target); err != nil {
		log.Fatalf("Failed to fix migration state: %v", err)
	}

	version, dirty, err = db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check final migration state: %v", err)
	}
	log.Printf("Final migration state: version=%d, dirty=%v", version, dirty)
}
