// Package main prints a random signing secret for COLLAB_JWT_SECRET, in the .env form the
// server reads at startup.
//
//	go run ./scripts/generate-key.go >> .env
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/collabspace/collab-api/internal/auth"
)

func main() {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s=%s\n", auth.SecretEnvVar, hex.EncodeToString(secret))
}
