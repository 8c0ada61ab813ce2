package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/YKarmar/JobTracker/internal/types"
)

// KeyringService groups the tracker's secrets in the OS keychain.
const KeyringService = "jobtracker"

// KeyringAccount names the keychain entry for an IMAP login.
func KeyringAccount(username, host string) string {
	return fmt.Sprintf("imap:%s@%s", username, host)
}

// IMAPPassword resolves the password from the configured value, then the
// EMAIL_PASSWORD / EMAIL_APP_PASSWORD environment variables, then the
// keychain.
func IMAPPassword(configured, username, host string) (string, error) {
	if pw := strings.TrimSpace(configured); pw != "" && !strings.HasPrefix(pw, "${") {
		return pw, nil
	}
	for _, env := range []string{"EMAIL_PASSWORD", "EMAIL_APP_PASSWORD"} {
		if pw := strings.TrimSpace(os.Getenv(env)); pw != "" {
			return pw, nil
		}
	}
	pw, err := keyring.Get(KeyringService, KeyringAccount(username, host))
	if err == nil && strings.TrimSpace(pw) != "" {
		return pw, nil
	}
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		err = errors.New("set imap.password, EMAIL_PASSWORD, or store it with -store-imap-password")
	}
	return "", &types.AuthError{Op: "imap password", Err: err}
}

// StoreIMAPPassword saves the password in the keychain.
func StoreIMAPPassword(username, host, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(host) == "" {
		return errors.New("imap.email and imap.host are required to store a password")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, KeyringAccount(username, host), password)
}
