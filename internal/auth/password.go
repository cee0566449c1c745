package auth

import (
	"context"
	"errors"
	"strings"

	"bbqstall/crew-monitor/internal/models"
	"bbqstall/crew-monitor/internal/store"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate checks email and password against the user store. Unknown
// users and wrong passwords both yield store.ErrInvalidCredentials.
func Authenticate(ctx context.Context, users store.UserStore, email, password string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, passwordHash, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return models.User{}, store.ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if passwordHash == "" {
		return models.User{}, store.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return models.User{}, store.ErrInvalidCredentials
	}
	return user, nil
}
