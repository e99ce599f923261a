// Package main is a diagnostic tool for database connectivity. It connects with the
// server's configuration, reports the migration state and prints row counts for the
// membership tables. It exits non-zero on any failure so it can gate deployments.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/collabspace/collab-api/internal/config"
	"github.com/collabspace/collab-api/internal/db"
)

var counts = []struct {
	label string
	query string
}{
	{"active users", "SELECT COUNT(*) FROM users WHERE deleted_at IS NULL"},
	{"organizations", "SELECT COUNT(*) FROM organizations WHERE deleted_at IS NULL"},
	{"deleted organizations", "SELECT COUNT(*) FROM organizations WHERE deleted_at IS NOT NULL"},
	{"memberships", "SELECT COUNT(*) FROM organization_members"},
	{"pending invitations", "SELECT COUNT(*) FROM invitations WHERE accepted_at IS NULL AND expires_at > NOW()"},
	{"expired invitations", "SELECT COUNT(*) FROM invitations WHERE accepted_at IS NULL AND expires_at <= NOW()"},
	{"audit entries", "SELECT COUNT(*) FROM audit_logs"},
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n\n", version, dirty)

	for _, c := range counts {
		var n int
		if err := database.GetContext(ctx, &n, c.query); err != nil {
			log.Fatalf("Query for %s failed: %v", c.label, err)
		}
		fmt.Printf("%-22s %d\n", c.label+":", n)
	}

	if dirty {
		fmt.Println("\nSchema is dirty; repair it and run: server migrate force <version>")
		os.Exit(1)
	}
}
