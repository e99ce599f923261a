// Package main prints a bcrypt hash of a password using the configured cost, for seeding
// users rows by hand without running the server.
//
//	go run ./cmd/hash 'correct horse battery staple'
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/collabspace/collab-api/internal/auth"
	"github.com/collabspace/collab-api/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <password>", os.Args[0])
	}

	cost := 0
	if cfg, err := config.Load(os.Getenv("CONFIG_PATH")); err == nil {
		cost = cfg.Auth.BcryptCost
	}

	hash, err := auth.HashPassword(os.Args[1], cost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Println(hash)
}
