// Package config persists server profiles and runtime settings under the
// user's config directory. Profile secrets are encrypted at rest; profiles
// handed out by the store always carry decrypted secrets.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hoptrace/internal/crypto"
	"hoptrace/internal/models"
)

const (
	DefaultConfigDir       = ".config/hoptrace"
	DefaultProfileFileName = "servers.json"
	DefaultFilePerms       = 0600
)

// profileFile is the on-disk shape of servers.json.
type profileFile struct {
	Servers []models.ServerProfile `json:"servers"`
}

// Store reads and writes the profile file. It keeps no in-memory copy:
// every call goes back to disk, so concurrent operations never observe a
// profile cached past a previous operation.
type Store struct {
	path   string
	cipher *crypto.Cipher
}

// NewStore creates a profile store backed by the given file. An empty path
// selects the default location under the user's home directory.
func NewStore(path string, cipher *crypto.Cipher) *Store {
	if path == "" {
		if defaultPath, err := DefaultProfilePath(); err == nil {
			path = defaultPath
		} else {
			path = DefaultProfileFileName
		}
	}
	return &Store{path: path, cipher: cipher}
}

// DefaultProfilePath returns ~/.config/hoptrace/servers.json, creating the
// config directory if needed.
func DefaultProfilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get home directory: %v", err)
	}

	configDir := filepath.Join(homeDir, DefaultConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("could not create config directory: %v", err)
	}

	return filepath.Join(configDir, DefaultProfileFileName), nil
}

// List returns all stored profiles with secrets decrypted. A missing file
// yields an empty list. A secret that does not decrypt is passed through
// unchanged, so profile files predating encryption keep working.
func (s *Store) List() ([]models.ServerProfile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.ServerProfile{}, nil
		}
		return nil, fmt.Errorf("failed to read profile file: %v", err)
	}

	var file profileFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profile file: %v", err)
	}

	for i := range file.Servers {
		if plain, err := s.cipher.Decrypt(file.Servers[i].Secret); err == nil {
			file.Servers[i].Secret = plain
		}
	}

	return file.Servers, nil
}

// Get returns the profile with the given id.
func (s *Store) Get(id string) (*models.ServerProfile, error) {
	profiles, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("profile %q not found", id)
}

// Save inserts the profile or replaces the stored one with the same id.
func (s *Store) Save(profile models.ServerProfile) error {
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %v", err)
	}

	profiles, err := s.List()
	if err != nil {
		return err
	}

	replaced := false
	for i := range profiles {
		if profiles[i].ID == profile.ID {
			profiles[i] = profile
			replaced = true
			break
		}
	}
	if !replaced {
		profiles = append(profiles, profile)
	}

	return s.write(profiles)
}

// Delete removes the profile with the given id.
func (s *Store) Delete(id string) error {
	profiles, err := s.List()
	if err != nil {
		return err
	}

	for i := range profiles {
		if profiles[i].ID == id {
			profiles = append(profiles[:i], profiles[i+1:]...)
			return s.write(profiles)
		}
	}
	return fmt.Errorf("profile %q not found", id)
}

// write encrypts secrets and persists the full profile list.
func (s *Store) write(profiles []models.ServerProfile) error {
	configDir := filepath.Dir(s.path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	out := profileFile{Servers: make([]models.ServerProfile, len(profiles))}
	copy(out.Servers, profiles)
	for i := range out.Servers {
		sealed, err := s.cipher.Encrypt(out.Servers[i].Secret)
		if err != nil {
			return fmt.Errorf("failed to encrypt secret for %q: %v", out.Servers[i].ID, err)
		}
		out.Servers[i].Secret = sealed
	}

	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %v", err)
	}

	if err := os.WriteFile(s.path, data, DefaultFilePerms); err != nil {
		return fmt.Errorf("failed to write profile file: %v", err)
	}

	return nil
}
