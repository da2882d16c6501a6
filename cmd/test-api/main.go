// Package main is a smoke-test utility that verifies the directory's HTTP API
// is reachable and returning valid responses. It issues real requests against
// the system endpoints and the first page of each resource and exits non-zero
// on the first failure, which makes it useful for quick post-deployment checks.
//
// Usage:
//
//	test-api [base-url]
//
// The base URL defaults to ORGDIR_SERVER_BASE_URL, then http://localhost:8080.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var paths = []string{
	"/health",
	"/ready",
	"/version",
	"/organizations?limit=1",
	"/departments?limit=1",
	"/users?limit=1",
	"/roles?limit=1",
}

func main() {
	baseURL := os.Getenv("ORGDIR_SERVER_BASE_URL")
	if len(os.Args) > 1 {
		baseURL = os.Args[1]
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	client := &http.Client{Timeout: 10 * time.Second}
	failed := false
	for _, p := range paths {
		if err := check(client, baseURL+p); err != nil {
			fmt.Printf("FAIL %s: %v\n", p, err)
			failed = true
			continue
		}
		fmt.Printf("ok   %s\n", p)
	}
	if failed {
		os.Exit(1)
	}
}

func check(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	if !json.Valid(body) {
		return fmt.Errorf("response is not JSON: %s", body)
	}
	return nil
}
