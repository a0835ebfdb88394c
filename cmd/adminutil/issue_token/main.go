package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/fieldhub/internal/auth"
	"github.com/sudo-init-do/fieldhub/internal/config"
)

func main() {
	sub := flag.String("sub", "", "account id (uuid)")
	role := flag.String("role", auth.RoleRequester, "requester, provider or admin")
	email := flag.String("email", "", "contact email; providers are matched on it")
	ttl := flag.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	flag.Parse()

	id, err := uuid.Parse(*sub)
	if err != nil {
		log.Fatalf("usage: go run ./cmd/adminutil/issue_token -sub <uuid> -role provider -email pro@example.com")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	token, err := auth.IssueToken(cfg.JWTSecret, auth.Identity{UserID: id, Contact: *email, Role: *role}, *ttl, time.Now())
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
