// Package main is a utility for generating password hashes with the algorithm the
// directory is configured for. The directory stores only hashes, never raw
// passwords, so this tool is used when seeding user rows by hand without running
// the full server.
//
// Usage:
//
//	hash [-algorithm argon2id|bcrypt|sha256] <password>
//	hash -verify '<stored hash>' <password>
//
// When no password argument is given it is read from the first line of stdin.
// With -verify the tool checks the password against a stored hash of any supported
// encoding and exits 1 on mismatch.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/org-directory/org-directory/internal/config"
	"github.com/org-directory/org-directory/internal/crypto"
)

func main() {
	algorithm := flag.String("algorithm", "", "hashing algorithm (defaults to security.password_hashing.algorithm from config)")
	verify := flag.String("verify", "", "stored hash to check the password against instead of hashing it")
	flag.Parse()

	if *algorithm == "" {
		// Fall back to argon2id when no config file is available
		if cfg, err := config.Load(os.Getenv("CONFIG_PATH")); err == nil {
			*algorithm = cfg.Security.PasswordHashing.Algorithm
		}
	}

	password := flag.Arg(0)
	if password == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("Failed to read password from stdin: %v", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if *verify != "" {
		ok, err := crypto.Verify(password, *verify)
		if err != nil {
			log.Fatalf("Failed to verify password: %v", err)
		}
		if !ok {
			fmt.Println("mismatch")
			os.Exit(1)
		}
		fmt.Println("match")
		return
	}

	hasher, err := crypto.NewPasswordHasher(*algorithm)
	if err != nil {
		log.Fatalf("Failed to create hasher: %v", err)
	}
	if crypto.IsLegacy(hasher.Algorithm()) {
		log.Printf("Warning: %s hashes are unsalted and only kept for legacy rows", hasher.Algorithm())
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Println(hash)
}
