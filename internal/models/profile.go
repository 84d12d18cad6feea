package models

import (
	"errors"
	"net"
	"strconv"
)

// Status is the last known reachability of a server, updated only by
// connection tests. The zero value means the server was never probed.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// ServerProfile describes one managed server. Secret holds the password
// ciphertext at rest; the profile store decrypts it on load, so in-memory
// profiles always carry plaintext. A profile may reference a private key
// file instead of (or in addition to) a password.
type ServerProfile struct {
	ID          string `json:"id"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Secret      string `json:"password,omitempty"`
	KeyPath     string `json:"key_path,omitempty"`
	Label       string `json:"description"`
	Environment string `json:"environment"`
	Status      Status `json:"status"`
}

// Validate checks that the profile can be dialed.
func (p *ServerProfile) Validate() error {
	if p.ID == "" {
		return errors.New("id cannot be empty")
	}
	if p.Host == "" {
		return errors.New("host cannot be empty")
	}
	if p.Port < 1 || p.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if p.Username == "" {
		return errors.New("username cannot be empty")
	}
	if p.Secret == "" && p.KeyPath == "" {
		return errors.New("either a password or a key path must be provided")
	}
	return nil
}

// Addr returns the host:port dial address.
func (p *ServerProfile) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Clone returns a copy of the profile.
func (p *ServerProfile) Clone() *ServerProfile {
	c := *p
	return &c
}
