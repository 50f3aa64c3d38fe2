// Package credentials resolves the Gemini API key used for narration.
//
// Keys come from the environment first and from a key file in the user's
// config directory second. They are read again on every request, so a key
// stored with `dastaan key` is picked up by a running process.
package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dastaan/dastaan/internal/ttypes"
	gap "github.com/muesli/go-app-paths"
	"golang.org/x/term"
)

// KeyFileName is the name of the stored key inside the config directory.
const KeyFileName = "api_key"

// Provider answers "is a credential available" and lets the user pick one.
type Provider interface {
	HasCredential() bool
	Prompt(ctx context.Context) error
	APIKey() (string, error)
}

type envKeys struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	APIKey       string `env:"API_KEY"`
}

// Source is the environment and key file backed Provider.
type Source struct {
	path string
	in   io.Reader
	out  io.Writer
	// fd is the terminal used for hidden input, or -1 to read plain lines
	fd int
}

// DefaultKeyPath returns <user config dir>/dastaan/api_key.
func DefaultKeyPath() (string, error) {
	scope := gap.NewScope(gap.User, "dastaan")
	path, err := scope.ConfigPath(KeyFileName)
	if err != nil {
		return "", fmt.Errorf("unable to find config directory: %w", err)
	}
	return path, nil
}

// NewSource creates a Provider storing its key at path. An empty path uses
// DefaultKeyPath.
func NewSource(path string) (*Source, error) {
	if path == "" {
		p, err := DefaultKeyPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Source{
		path: path,
		in:   os.Stdin,
		out:  os.Stderr,
		fd:   int(os.Stdin.Fd()), //nolint:gosec
	}, nil
}

// Path returns the key file location.
func (s *Source) Path() string {
	return s.path
}

// APIKey returns the first key found in GEMINI_API_KEY, API_KEY or the key
// file. It returns ttypes.ErrNoCredential when none is set.
func (s *Source) APIKey() (string, error) {
	var keys envKeys
	if err := env.Parse(&keys); err != nil {
		return "", fmt.Errorf("error parsing environment: %w", err)
	}
	for _, k := range []string{keys.GeminiAPIKey, keys.APIKey} {
		if k = strings.TrimSpace(k); k != "" {
			return k, nil
		}
	}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ttypes.ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("unable to read key file: %w", err)
	}
	key := strings.TrimSpace(string(b))
	if key == "" {
		return "", ttypes.ErrNoCredential
	}
	return key, nil
}

// Origin reports where the active key comes from, for `dastaan key --status`.
func (s *Source) Origin() string {
	var keys envKeys
	_ = env.Parse(&keys)
	switch {
	case strings.TrimSpace(keys.GeminiAPIKey) != "":
		return "GEMINI_API_KEY"
	case strings.TrimSpace(keys.APIKey) != "":
		return "API_KEY"
	}
	if _, err := s.APIKey(); err == nil {
		return s.path
	}
	return ""
}

// HasCredential reports whether APIKey would succeed.
func (s *Source) HasCredential() bool {
	_, err := s.APIKey()
	return err == nil
}

// Prompt asks for a key on the terminal without echoing it and stores it.
func (s *Source) Prompt(ctx context.Context) error {
	if _, err := fmt.Fprint(s.out, "Gemini API key: "); err != nil {
		return err
	}

	type answer struct {
		key string
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		key, err := s.readKey()
		ch <- answer{key, err}
	}()

	var a answer
	select {
	case <-ctx.Done():
		return ctx.Err()
	case a = <-ch:
	}
	_, _ = fmt.Fprintln(s.out)
	if a.err != nil {
		return fmt.Errorf("unable to read key: %w", a.err)
	}
	return s.Store(a.key)
}

func (s *Source) readKey() (string, error) {
	if s.fd >= 0 && term.IsTerminal(s.fd) {
		b, err := term.ReadPassword(s.fd)
		return string(b), err
	}
	line, err := bufio.NewReader(s.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return line, nil
}

// Store writes key to the key file with owner-only permissions.
func (s *Source) Store(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ttypes.ErrNoCredential
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(key+"\n"), 0o600); err != nil {
		return fmt.Errorf("unable to write key file: %w", err)
	}
	log.Info("Stored API key", "path", s.path)
	return nil
}

// Forget removes the stored key file. Environment keys are not affected.
func (s *Source) Forget() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unable to remove key file: %w", err)
	}
	return nil
}
