// Command token mints bearer tokens for operators and clients. It signs with
// the same CURATOR_AUTH_* settings the server verifies with.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/internal/config"
)

func main() {
	var (
		subject = flag.String("sub", "", "Token subject (required)")
		role    = flag.String("role", auth.RoleUser, "Role claim: "+auth.RoleUser+" or "+auth.RoleAdmin)
		ttl     = flag.String("ttl", "", "Token lifetime, overrides $"+config.AuthEnv.TokenTTL)
	)
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: token -sub <subject> [-role user|admin] [-ttl 12h]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *role != auth.RoleUser && *role != auth.RoleAdmin {
		log.Fatalf("unknown role %q", *role)
	}

	cfg := auth.Config{TokenTTL: *ttl}
	if err := cfg.Finalize(config.AuthEnv); err != nil {
		log.Fatalf("auth config: %v", err)
	}
	if *ttl != "" {
		cfg.TokenTTL = *ttl
	}

	token, err := auth.NewTokens(&cfg).Issue(*subject, *role)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
