// Package token manages the machine-wide shared secret used by every
// instance and every remote client. The file is written once and read many
// times; concurrent readers are tolerated without locking.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	FileName  = "bridge.token"
	secretLen = 32
	filePerms = 0o600
	dirPerms  = 0o755
)

// Load returns the shared token from dir, generating and persisting a new
// one on first use.
func Load(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err == nil {
		tok := strings.TrimSpace(string(data))
		if tok != "" {
			return tok, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("token read failed (%s): %w", path, err)
	}
	return generate(path)
}

func generate(path string) (string, error) {
	raw := make([]byte, secretLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("token generation failed: %w", err)
	}
	tok := hex.EncodeToString(raw)
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return "", fmt.Errorf("token dir create failed: %w", err)
	}
	if err := os.WriteFile(path, []byte(tok+"\n"), filePerms); err != nil {
		return "", fmt.Errorf("token write failed (%s): %w", path, err)
	}
	return tok, nil
}
