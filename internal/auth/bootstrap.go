package auth

import (
	"context"
	"fmt"
	"log"

	"github.com/fsae-team/daqserver/internal/store"
)

// BootstrapAdmin creates the initial admin account from username/password
// when the user table is empty. It is a no-op once any user exists.
func BootstrapAdmin(ctx context.Context, s *store.Store, username, password string) error {
	count, err := s.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	if username == "" || password == "" {
		return fmt.Errorf("no users exist and ADMIN_USERNAME/ADMIN_PASSWORD are not set")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap admin password: %w", err)
	}
	if _, err := s.CreateUser(ctx, username, hash, true, nil); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}
	log.Printf("auth: bootstrapped initial admin account %q", username)
	return nil
}
