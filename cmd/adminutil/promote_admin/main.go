package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/sudo-init-do/fieldhub/internal/config"
	"github.com/sudo-init-do/fieldhub/internal/db"
	"github.com/sudo-init-do/fieldhub/internal/directory"
	"github.com/sudo-init-do/fieldhub/internal/logging"
)

func main() {
	email := flag.String("email", "", "Email of the requester account to promote to admin")
	flag.Parse()

	if *email == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/promote_admin -email user@example.com")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	pool, err := db.Connect(context.Background(), cfg.DatabaseURL(), logging.New(cfg.LogLevel, "text"))
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	ct, err := pool.Exec(context.Background(),
		`UPDATE requesters SET role = 'admin' WHERE email = $1`, directory.NormalizeContact(*email))
	if err != nil {
		log.Fatalf("failed to promote account to admin: %v", err)
	}
	if ct.RowsAffected() == 0 {
		log.Fatalf("no requester found with email: %s", *email)
	}

	fmt.Printf("Account %s promoted to admin.\n", *email)
}
