// Package main is a post-deployment smoke test. It calls the health, readiness and version
// endpoints of a running server and exits non-zero when any of them is not 200.
//
//	COLLAB_API_URL=https://collab.example.com go run ./cmd/test-api
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	base := strings.TrimRight(os.Getenv("COLLAB_API_URL"), "/")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}

	failed := false
	for _, path := range []string{"/health", "/ready", "/version"} {
		resp, err := client.Get(base + path)
		if err != nil {
			fmt.Printf("%-9s error: %v\n", path, err)
			failed = true
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		fmt.Printf("%-9s %d %s\n", path, resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode != http.StatusOK {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
