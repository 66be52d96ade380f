package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

func main() {
	// Generate a new AES-256 key encryption key
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating key: %v\n", err)
		os.Exit(1)
	}

	keyBase64 := base64.StdEncoding.EncodeToString(key)

	fmt.Printf("Generated AES-256 key encryption key (base64 encoded):\n%s\n", keyBase64)
	fmt.Printf("\nYou can use this key in your configuration:\n")
	fmt.Printf("dks:\n  keys:\n    kek:\n      type: aes\n      key: \"%s\"\n", keyBase64)
	fmt.Printf("\nOr set it as an environment variable:\n")
	fmt.Printf("export HDI_DKS_KEYS_KEK_KEY=\"%s\"\n", keyBase64)
	fmt.Printf("export HDI_KEY_SOURCE_LOCAL_KEK_KEY=\"%s\"\n", keyBase64)
}
