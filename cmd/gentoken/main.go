// gentoken prints a bearer token for a user id, signed with the configured
// JWT secret. Useful for calling protected endpoints by hand.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jobboard/server/internal/auth"
	"github.com/jobboard/server/internal/config"
)

func main() {
	userID := flag.String("user", "", "user id to put in the token")
	envFile := flag.String("env-file", "", "optional dotenv file")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Error: --user is required")
		os.Exit(2)
	}
	if *envFile != "" {
		if err := config.LoadEnvFile(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer).Generate(*userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "\ncurl -X POST -H 'Authorization: Bearer %s' http://localhost:%d/jobs\n", token, cfg.Server.Port)
}
