// Package main is a diagnostic tool for testing database connectivity and
// inspecting live directory data. It connects with the server's configuration,
// prints the schema version and the number of organizations, departments, users
// and roles, and exits with a non-zero code on any failure so it can gate
// deployments on a reachable, migrated database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/org-directory/org-directory/internal/config"
	"github.com/org-directory/org-directory/internal/db"
	"github.com/org-directory/org-directory/internal/db/repositories"
)

type counter interface {
	Count(ctx context.Context) (int64, error)
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("=== SCHEMA ===\nVersion: %d (dirty: %v)\n", version, dirty)
	if version == 0 {
		log.Fatal("Schema has not been migrated; run `server migrate up`")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	x := sqlx.NewDb(database, "postgres")
	fmt.Println("\n=== ENTITIES ===")
	for _, e := range []struct {
		name string
		repo counter
	}{
		{"organizations", repositories.NewOrganizationRepository(x)},
		{"departments", repositories.NewDepartmentRepository(x)},
		{"users", repositories.NewUserRepository(x)},
		{"roles", repositories.NewRoleRepository(x)},
	} {
		n, err := e.repo.Count(ctx)
		if err != nil {
			log.Fatalf("Count %s failed: %v", e.name, err)
		}
		fmt.Printf("%-14s %d\n", e.name+":", n)
	}

	if dirty {
		fmt.Println("\nSchema is dirty; repair it with fix-migration")
		os.Exit(1)
	}
}
