package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validProfile() ServerProfile {
	return ServerProfile{
		ID:       "p1",
		Host:     "10.0.0.1",
		Port:     22,
		Username: "deploy",
		Secret:   "hunter2",
	}
}

func TestValidate(t *testing.T) {
	t.Run("a complete profile passes", func(t *testing.T) {
		p := validProfile()
		assert.NoError(t, p.Validate())
	})

	t.Run("a key path satisfies the credential requirement", func(t *testing.T) {
		p := validProfile()
		p.Secret = ""
		p.KeyPath = "/home/deploy/.ssh/id_ed25519"
		assert.NoError(t, p.Validate())
	})

	mutations := map[string]func(*ServerProfile){
		"missing id":       func(p *ServerProfile) { p.ID = "" },
		"missing host":     func(p *ServerProfile) { p.Host = "" },
		"missing username": func(p *ServerProfile) { p.Username = "" },
		"port zero":        func(p *ServerProfile) { p.Port = 0 },
		"port too high":    func(p *ServerProfile) { p.Port = 70000 },
		"no credentials":   func(p *ServerProfile) { p.Secret = "" },
	}
	for name, mutate := range mutations {
		t.Run(name+" fails", func(t *testing.T) {
			p := validProfile()
			mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestAddr(t *testing.T) {
	p := validProfile()
	assert.Equal(t, "10.0.0.1:22", p.Addr())

	p.Host = "::1"
	p.Port = 2222
	assert.Equal(t, "[::1]:2222", p.Addr(), "IPv6 hosts need brackets")
}

func TestCloneIsIndependent(t *testing.T) {
	p := validProfile()
	c := p.Clone()
	c.Secret = "changed"
	c.Status = StatusOffline

	assert.Equal(t, "hunter2", p.Secret)
	assert.Equal(t, Status(""), p.Status)
}
