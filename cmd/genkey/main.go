// Command genkey prints a fresh token signing seed for TOKEN_KEY.
package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/eldtechnologies/chatline/internal/crypto"
)

func main() {
	seed, err := crypto.GenerateSeed()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate seed: %v\n", err)
		os.Exit(1)
	}
	priv, err := crypto.ParseSeed(seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse seed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("TOKEN_KEY=%s\n", seed)
	fmt.Printf("Public key (base64): %s\n", base64.StdEncoding.EncodeToString(priv.Public().(ed25519.PublicKey)))
}
