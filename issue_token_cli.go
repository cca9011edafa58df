package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// runIssueTokenCli prints a bearer token for a relay or UI peer.
//
//	wcnode issue-token <relay|ui> [ttl]
func runIssueTokenCli(logger Logger) {
	logger = logger.NewSystem("issue-token")
	if len(os.Args) < 3 || len(os.Args) > 4 {
		logger.Fatal("Usage: wcnode issue-token <relay|ui> [ttl]")
	}
	role := os.Args[2]

	var ttl time.Duration
	if len(os.Args) == 4 {
		parsed, err := time.ParseDuration(os.Args[3])
		if err != nil {
			logger.Fatal("Invalid token ttl", "value", os.Args[3], "error", err)
		}
		ttl = parsed
	}

	loadDotEnv(logger)
	var env EnvConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		logger.Fatal("Failed to read env", "error", err)
	}

	authKey, err := loadAuthKey(env.AuthPrivateKey)
	if err != nil {
		logger.Fatal("Failed to load auth key", "error", err)
	}
	peerAuth, err := NewPeerAuth(authKey, env.PeerTokenTTL)
	if err != nil {
		logger.Fatal("Failed to initialize peer auth", "error", err)
	}

	claims, token, err := peerAuth.GenerateJWT(role, ttl)
	if err != nil {
		logger.Fatal("Failed to issue token", "role", role, "error", err)
	}
	logger.Info("issued peer token", "role", role, "expiresAt", claims.ExpiresAt.Time)
	fmt.Println(token)
}
