package ssh

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"hoptrace/internal/models"
)

const (
	terminalType     = "xterm-256color"
	defaultKeepAlive = 30 * time.Second
	eventBufferSize  = 64
	readChunkSize    = 4096
)

// Event is one unit of terminal session output. Chunk boundaries follow the
// transport, not remote write boundaries. Ended marks the final event of a
// session; the channel closes right after it.
type Event struct {
	SessionID string
	Data      []byte
	Ended     bool
}

// ptySession owns one remote pseudo-terminal channel and its read pump.
type ptySession struct {
	id      string
	host    string
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	events  chan Event
	stop    chan struct{}

	mu     sync.Mutex
	cols   int
	rows   int
	closed bool
}

// shutdown tears the transport down exactly once. The read pump notices the
// dead transport and emits the final event; shutdown itself never touches
// the event channel.
func (s *ptySession) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.session.Close()
	s.client.Close()
}

// TerminalManager opens interactive PTY sessions and drives them by id:
// input, resize and close calls route through the session registry, remote
// output and termination surface as Events.
type TerminalManager struct {
	dialer    *Dialer
	registry  *sessionRegistry
	keepAlive time.Duration
	logger    *log.Logger
}

// NewTerminalManager creates a TerminalManager dialing through dialer.
func NewTerminalManager(dialer *Dialer, logger *log.Logger) *TerminalManager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &TerminalManager{
		dialer:    dialer,
		registry:  newSessionRegistry(),
		keepAlive: defaultKeepAlive,
		logger:    logger,
	}
}

// Open dials the profile, allocates a remote PTY of the given size and
// starts a shell. It returns the session id and the event stream carrying
// remote output; the stream ends with exactly one Ended event followed by
// channel close, whether the session ends by Close, remote exit or
// transport error.
func (m *TerminalManager) Open(ctx context.Context, profile *models.ServerProfile, cols, rows int) (string, <-chan Event, error) {
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	client, err := m.dialer.Dial(ctx, profile)
	if err != nil {
		return "", nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return "", nil, &ConnectError{Kind: Unreachable, Host: profile.Host, Err: err}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
		ssh.VINTR:         3,
		ssh.VQUIT:         28,
		ssh.VERASE:        127,
		ssh.VKILL:         21,
		ssh.VEOF:          4,
		ssh.VWERASE:       23,
		ssh.VLNEXT:        22,
		ssh.VSUSP:         26,
	}
	if err := session.RequestPty(terminalType, rows, cols, modes); err != nil {
		session.Close()
		client.Close()
		return "", nil, &ConnectError{Kind: Unreachable, Host: profile.Host, Err: err}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return "", nil, &ConnectError{Kind: Unreachable, Host: profile.Host, Err: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return "", nil, &ConnectError{Kind: Unreachable, Host: profile.Host, Err: err}
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return "", nil, &ConnectError{Kind: Unreachable, Host: profile.Host, Err: err}
	}

	s := &ptySession{
		id:      uuid.NewString(),
		host:    profile.Host,
		client:  client,
		session: session,
		stdin:   stdin,
		events:  make(chan Event, eventBufferSize),
		stop:    make(chan struct{}),
		cols:    cols,
		rows:    rows,
	}
	m.registry.insert(s.id, s)

	go m.readPump(s, stdout)
	go m.keepAliveLoop(s)

	m.logger.Info("terminal session opened", "session", s.id, "host", profile.Host)
	return s.id, s.events, nil
}

// readPump forwards remote output to the event channel in arrival order.
// It is the single writer and single closer of the channel, which makes the
// final Ended event exactly-once by construction.
func (m *TerminalManager) readPump(s *ptySession, stdout io.Reader) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			// Data read after the session closed is dropped; the stop
			// check comes first so a closed session never emits output.
			select {
			case <-s.stop:
			default:
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case s.events <- Event{SessionID: s.id, Data: data}:
				case <-s.stop:
				}
			}
		}
		if err != nil {
			break
		}
	}

	// Remote exit, transport errors and explicit Close all funnel through
	// here, so every termination produces the same final event.
	m.registry.remove(s.id)
	s.shutdown()
	select {
	case s.events <- Event{SessionID: s.id, Ended: true}:
	default:
		// Nobody is draining; the close below still signals the end.
	}
	close(s.events)
	m.logger.Debug("terminal session ended", "session", s.id, "host", s.host)
}

// keepAliveLoop pings the server so a half-dead transport fails fast
// instead of leaving an idle session hanging.
func (m *TerminalManager) keepAliveLoop(s *ptySession) {
	ticker := time.NewTicker(m.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				s.shutdown()
				return
			}
		case <-s.stop:
			return
		}
	}
}

// Input forwards bytes to the remote terminal. An unknown or closed id
// returns ErrSessionNotFound; a session closing concurrently drops the
// bytes silently rather than erroring the caller mid-flight.
func (m *TerminalManager) Input(id string, data []byte) error {
	s, ok := m.registry.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	if _, err := s.stdin.Write(data); err != nil {
		m.logger.Debug("input dropped, session closing", "session", id)
	}
	return nil
}

// Resize updates the remote window size, with the same not-found and race
// contracts as Input.
func (m *TerminalManager) Resize(id string, cols, rows int) error {
	s, ok := m.registry.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (cols == s.cols && rows == s.rows) {
		return nil
	}
	if err := s.session.WindowChange(rows, cols); err != nil {
		return nil
	}
	s.cols, s.rows = cols, rows
	return nil
}

// Close tears the session down and removes it from the registry. It is
// idempotent and safe at any moment, including mid-read: the pump emits the
// final Ended event and closes the stream.
func (m *TerminalManager) Close(id string) {
	s, ok := m.registry.remove(id)
	if !ok {
		return
	}
	s.shutdown()
}
