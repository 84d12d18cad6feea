package ssh

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoptrace/internal/models"
)

// fakeStore is an in-memory ProfileStore recording every Save.
type fakeStore struct {
	mu       sync.Mutex
	profiles []models.ServerProfile
	saved    []models.ServerProfile
	listErr  error
}

func (f *fakeStore) List() ([]models.ServerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.ServerProfile, len(f.profiles))
	copy(out, f.profiles)
	return out, nil
}

func (f *fakeStore) Save(p models.ServerProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, p)
	return nil
}

func (f *fakeStore) lastSaved() (models.ServerProfile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return models.ServerProfile{}, false
	}
	return f.saved[len(f.saved)-1], true
}

func TestServiceTestConnection(t *testing.T) {
	t.Run("a reachable host is recorded online", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		scriptProbe(srv)
		store := &fakeStore{}
		service := NewService(store, ServiceSettings{}, nil)

		require.NoError(t, service.TestConnection(context.Background(), srv.profile()))

		saved, ok := store.lastSaved()
		require.True(t, ok)
		assert.Equal(t, models.StatusOnline, saved.Status)
		assert.Equal(t, testPassword, saved.Secret, "write-back keeps the credentials")
	})

	t.Run("an unreachable host is recorded offline", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		profile := profileForAddr(t, listener.Addr().String())
		require.NoError(t, listener.Close())

		store := &fakeStore{}
		service := NewService(store, ServiceSettings{}, nil)

		require.Error(t, service.TestConnection(context.Background(), profile))

		saved, ok := store.lastSaved()
		require.True(t, ok)
		assert.Equal(t, models.StatusOffline, saved.Status)
	})

	t.Run("ad-hoc profiles are probed but never stored", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		scriptProbe(srv)
		profile := srv.profile()
		profile.ID = ""

		store := &fakeStore{}
		service := NewService(store, ServiceSettings{}, nil)

		require.NoError(t, service.TestConnection(context.Background(), profile))
		_, ok := store.lastSaved()
		assert.False(t, ok)
	})
}

func TestServiceExec(t *testing.T) {
	t.Run("failure folds stderr and exit code into the text", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(string) (string, string, uint32) {
			return "partial\n", "boom\n", 2
		})
		service := NewService(&fakeStore{}, ServiceSettings{}, nil)

		out, err := service.Exec(context.Background(), srv.profile(), "deploy")
		require.NoError(t, err, "a failing command is still a successful exec")
		assert.Contains(t, out.Text, "partial")
		assert.Contains(t, out.Text, "[stderr] boom")
		assert.Contains(t, out.Text, "[exit: 2]")
		assert.Equal(t, 2, out.ExitStatus)
	})

	t.Run("success keeps stdout untouched even with stderr noise", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(string) (string, string, uint32) {
			return "fine\n", "deprecation warning\n", 0
		})
		service := NewService(&fakeStore{}, ServiceSettings{}, nil)

		out, err := service.Exec(context.Background(), srv.profile(), "status")
		require.NoError(t, err)
		assert.Equal(t, "fine\n", out.Text)
	})

	t.Run("failure without stderr stays undecorated", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(string) (string, string, uint32) {
			return "only stdout\n", "", 4
		})
		service := NewService(&fakeStore{}, ServiceSettings{}, nil)

		out, err := service.Exec(context.Background(), srv.profile(), "check")
		require.NoError(t, err)
		assert.Equal(t, "only stdout\n", out.Text)
		assert.Equal(t, 4, out.ExitStatus)
	})

	t.Run("capped output surfaces as a flag, not an error", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(string) (string, string, uint32) {
			return strings.Repeat("z", 100), "", 0
		})
		service := NewService(&fakeStore{}, ServiceSettings{OutputCap: 16}, nil)

		out, err := service.Exec(context.Background(), srv.profile(), "spam")
		require.NoError(t, err)
		assert.True(t, out.Truncated)
		assert.Len(t, out.Text, 16)
	})
}

func TestServiceReadFile(t *testing.T) {
	srv := newTestServer(t, "127.0.0.1")
	srv.script(func(command string) (string, string, uint32) {
		if strings.HasPrefix(command, "head -n ") {
			return "ERR one\nok line\nERR two\n", "", 0
		}
		return "", "unexpected command", 1
	})
	service := NewService(&fakeStore{}, ServiceSettings{}, nil)

	content, err := service.ReadFile(context.Background(), srv.profile(), "/var/log/app.log", "ERR", 100)
	require.NoError(t, err)
	assert.Equal(t, "ERR one\nok line\nERR two\n", content.Text)
	assert.False(t, content.Truncated)
	assert.Equal(t, 2, content.Matches)

	content, err = service.ReadFile(context.Background(), srv.profile(), "/var/log/app.log", "", 100)
	require.NoError(t, err)
	assert.Equal(t, 0, content.Matches)
}

func TestServiceTraceChainResolvesHopsThroughStore(t *testing.T) {
	srvA := newTestServer(t, "127.0.0.1")
	scriptTraceHost(srvA, "./edge.log B-1 localhost\n", "")
	srvB := newTestServer(t, "localhost")
	scriptTraceHost(srvB, "./core.log G-9 10.0.0.2\n", "")

	profileA := srvA.profile()
	profileB := srvB.profile()

	// Only the store knows B; the candidate list alone could not resolve
	// the second hop.
	store := &fakeStore{profiles: []models.ServerProfile{*profileA, *profileB}}
	service := NewService(store, ServiceSettings{}, nil)

	result, err := service.TraceChain(context.Background(), []models.ServerProfile{*profileA}, "TX77", "/logs")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalHops)
	require.Len(t, result.Nodes, 1)
	require.Len(t, result.Nodes[0].Children, 1)
	assert.Equal(t, "localhost", result.Nodes[0].Children[0].Addr)
}

func TestServiceTraceChainFallsBackToCandidates(t *testing.T) {
	srv := newTestServer(t, "127.0.0.1")
	scriptTraceHost(srv, "./edge.log G-1 10.0.0.2\n", "")
	profile := srv.profile()

	store := &fakeStore{listErr: errors.New("disk gone")}
	service := NewService(store, ServiceSettings{}, nil)

	result, err := service.TraceChain(context.Background(), []models.ServerProfile{*profile}, "TX1", "/logs")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalHops)
}

func TestServiceTerminalPassthrough(t *testing.T) {
	service := NewService(&fakeStore{}, ServiceSettings{}, nil)
	assert.ErrorIs(t, service.SendInput("ghost", []byte("x")), ErrSessionNotFound)
	assert.ErrorIs(t, service.ResizeTerminal("ghost", 80, 24), ErrSessionNotFound)
	service.CloseTerminal("ghost")
}
