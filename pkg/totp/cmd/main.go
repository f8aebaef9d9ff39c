package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/dmitrymomot/twofactor/pkg/totp"
)

func main() {
	envLine := flag.Bool("env", false, "print as a .env line")
	flag.Parse()

	encodedKey, err := totp.GenerateEncodedEncryptionKey()
	if err != nil {
		log.Fatalf("Failed to generate encoded encryption key: %v", err)
	}

	if *envLine {
		fmt.Printf("TWOFA_TOTP_ENCRYPTION_KEY=%s\n", encodedKey)
		return
	}

	fmt.Printf("Generated encryption key (for TWOFA_TOTP_ENCRYPTION_KEY env var): \n---\n%s\n---\n", encodedKey)
}
