package otp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups the crawler's secrets in the OS keychain.
const KeyringService = "crawler-jobstreet"

// Keychain holds the password of one IMAP mailbox in the OS keychain, so
// the IMAP code source can start without the password in the environment.
type Keychain struct {
	account string
}

// NewKeychain names the entry after the mailbox login and server.
func NewKeychain(username, addr string) (Keychain, error) {
	username, addr = strings.TrimSpace(username), strings.TrimSpace(addr)
	if username == "" || addr == "" {
		return Keychain{}, errors.New("keychain entry needs both the IMAP username and server address")
	}
	return Keychain{account: fmt.Sprintf("imap:%s@%s", username, addr)}, nil
}

func (k Keychain) Account() string { return k.account }

// Password returns the saved mailbox password.
func (k Keychain) Password() (string, error) {
	pw, err := keyring.Get(KeyringService, k.account)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", fmt.Errorf("no mailbox password saved for %s, run the crawler once with -store-imap-password", k.account)
	case err != nil:
		return "", fmt.Errorf("keychain lookup for %s: %w", k.account, err)
	case strings.TrimSpace(pw) == "":
		return "", fmt.Errorf("keychain entry %s holds an empty password", k.account)
	}
	return pw, nil
}

func (k Keychain) Save(password string) error {
	if strings.TrimSpace(password) == "" {
		return errors.New("refusing to save an empty mailbox password")
	}
	if err := keyring.Set(KeyringService, k.account, password); err != nil {
		return fmt.Errorf("keychain save for %s: %w", k.account, err)
	}
	return nil
}

// Forget removes the entry. A missing entry is not an error.
func (k Keychain) Forget() error {
	err := keyring.Delete(KeyringService, k.account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keychain delete for %s: %w", k.account, err)
	}
	return nil
}
