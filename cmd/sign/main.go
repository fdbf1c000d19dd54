// Command sign mints a bearer token offline, for scripting against the
// server with curl.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eldtechnologies/chatline/internal/crypto"
)

func main() {
	seed := flag.String("key", os.Getenv("TOKEN_KEY"), "Base64-encoded token seed (defaults to $TOKEN_KEY)")
	username := flag.String("user", "", "Username the token is issued to")
	userID := flag.String("uid", "", "User ID (optional)")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	flag.Parse()

	if *seed == "" || *username == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -key <seed-base64> -user <username> [-uid <id>] [-ttl 1h]")
		os.Exit(1)
	}

	priv, err := crypto.ParseSeed(*seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid key: %v\n", err)
		os.Exit(1)
	}
	signer, err := crypto.NewTokenSigner(priv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Signer: %v\n", err)
		os.Exit(1)
	}

	token, claims, err := signer.Issue(*username, *userID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Authorization: Bearer %s\n", token)
	fmt.Printf("Expires: %s\n", time.Unix(claims.ExpiresAt, 0).UTC().Format(time.RFC3339))
}
