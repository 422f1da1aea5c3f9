package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ccollins476ad/slurp/fileutil"
	log "github.com/sirupsen/logrus"
)

// Filename is the name of the credentials file inside the user's config
// directory.
const Filename = "slurp.json"

// ErrMissing indicates that no usable configuration exists.
var ErrMissing = errors.New("configuration missing")

// Credentials are the reddit application credentials, plus optional
// credentials for other sites.
type Credentials struct {
	ClientID      string `json:"client-id"`
	ClientSecret  string `json:"client-secret"`
	ImgurClientID string `json:"imgur-client-id,omitempty"`
}

// DefaultPath returns the path of the credentials file inside the user's
// config directory (e.g., ~/.config/slurp.json).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("failed to locate config directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, Filename), nil
}

// Load reads the credentials file at the given path. Every failure (absent
// file, bad json, empty fields) wraps ErrMissing.
func Load(path string) (*Credentials, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissing, err)
	}

	c := &Credentials{}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %v", ErrMissing, path, err)
	}

	if c.ClientID == "" || c.ClientSecret == "" {
		return nil, fmt.Errorf("%w: %s lacks client-id or client-secret", ErrMissing, path)
	}

	log.Debugf("loaded configuration: %s", path)
	return c, nil
}

// Save writes the credentials file to the given path, creating its
// directory if needed. The file is readable only by its owner.
func Save(path string, c *Credentials) error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("client-id and client-secret are required")
	}

	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	b, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, append(b, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	log.Infof("saved configuration: %s", path)
	return nil
}
