package db

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// EnsureAdmin creates the admin account from ADMIN_USERNAME/ADMIN_PASSWORD
// if it does not exist yet. Safe to call on every startup.
func EnsureAdmin(ctx context.Context, database *Database) error {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		return nil
	}

	var count int
	err := database.ExecQueryRow(ctx, "SELECT COUNT(*) FROM users WHERE username = $1", username).Scan(&count)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if count > 0 {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = database.Exec(ctx,
		"INSERT INTO users (username, password, is_admin) VALUES ($1, $2, TRUE)",
		username, string(hashed))
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	return nil
}
