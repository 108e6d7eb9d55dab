package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"projectdesk/internal/app"
	"projectdesk/internal/platform/config"
	"projectdesk/internal/platform/logger"
	usermodels "projectdesk/internal/user/models"
	dErrors "projectdesk/pkg/domain-errors"
)

// main provisions the first super admin, or verifies an existing one, and prints
// an access token for it.
func main() {
	var (
		username = flag.String("username", "admin", "super admin username")
		email    = flag.String("email", "", "super admin email")
		password = flag.String("password", "", "super admin password")
		country  = flag.String("country", "", "super admin home country")
	)
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New(cfg.Log)

	if *email == "" || *password == "" || *country == "" {
		fmt.Fprintln(os.Stderr, "usage: bootstrap -email EMAIL -password PASSWORD -country COUNTRY [-username NAME]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	admin, err := a.Users.Bootstrap(ctx, &usermodels.CreateUserRequest{
		Username:        *username,
		Email:           *email,
		Password:        *password,
		PasswordConfirm: *password,
		Country:         *country,
	})
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		admin, err = a.Users.VerifyCredentials(ctx, *email, *password)
	}
	if err != nil {
		log.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	token, err := a.Identity.Issue(admin.ID)
	if err != nil {
		log.Error("token issue failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
