package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const pepperLength = 32

// LoadOrCreatePepper loads the pepper stored at path, generating and
// persisting a new random one (mode 0600) if the file does not exist.
func LoadOrCreatePepper(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("pepper path is empty")
	}
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		pepper, decErr := base64.RawURLEncoding.DecodeString(strings.TrimSpace(string(data)))
		if decErr != nil {
			return nil, fmt.Errorf("failed to decode pepper file %q: %w", path, decErr)
		}
		if len(pepper) == 0 {
			return nil, fmt.Errorf("pepper file %q is empty", path)
		}
		return pepper, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read pepper file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create pepper directory: %w", err)
	}

	pepper := make([]byte, pepperLength)
	if _, err := rand.Read(pepper); err != nil {
		return nil, fmt.Errorf("failed to generate pepper: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(pepper)
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write pepper file: %w", err)
	}
	return pepper, nil
}
