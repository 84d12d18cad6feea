package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"hoptrace/internal/models"
)

const defaultExecTimeout = 30 * time.Second

// ProfileStore is the slice of profile persistence the service needs:
// resolving known hosts for chain traces and recording probe outcomes.
type ProfileStore interface {
	List() ([]models.ServerProfile, error)
	Save(profile models.ServerProfile) error
}

// ServiceSettings carries the tunables for remote operations. Zero values
// fall back to the package defaults.
type ServiceSettings struct {
	ConnectTimeout time.Duration
	ExecTimeout    time.Duration
	SearchWorkers  int64
	TraceMaxDepth  int
	ReadMaxLines   int
	OutputCap      int
}

// Service is the single entry point for remote operations: probes, one-shot
// commands, log reads, multi-host searches, chain traces and interactive
// terminals. All methods are safe for concurrent use; the terminal registry
// is the only shared mutable state behind them.
type Service struct {
	store     ProfileStore
	dialer    *Dialer
	searcher  *Searcher
	tracer    *Tracer
	terminals *TerminalManager
	settings  ServiceSettings
	logger    *log.Logger
}

// NewService wires the operation engines around one shared dialer.
func NewService(store ProfileStore, settings ServiceSettings, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	dialer := NewDialer(settings.ConnectTimeout, logger)
	return &Service{
		store:     store,
		dialer:    dialer,
		searcher:  NewSearcher(dialer, settings.SearchWorkers, settings.OutputCap, logger),
		tracer:    NewTracer(dialer, settings.TraceMaxDepth, settings.OutputCap, logger),
		terminals: NewTerminalManager(dialer, logger),
		settings:  settings,
		logger:    logger,
	}
}

// TestConnection probes the profile with a trivial remote command and, for
// stored profiles, records the outcome as the profile status. The probe
// result is returned either way; a failed status write only logs.
func (sv *Service) TestConnection(ctx context.Context, profile *models.ServerProfile) error {
	err := sv.dialer.Test(ctx, profile)

	if profile.ID != "" {
		updated := profile.Clone()
		updated.Status = models.StatusOnline
		if err != nil {
			updated.Status = models.StatusOffline
		}
		if saveErr := sv.store.Save(*updated); saveErr != nil {
			sv.logger.Warn("failed to record probe status", "host", profile.Host, "error", saveErr)
		}
	}
	return err
}

// ExecOutput is the rendered result of a one-shot command.
type ExecOutput struct {
	Text       string
	ExitStatus int
	Truncated  bool
	Duration   time.Duration
}

// Exec runs one command on the profile host under the exec timeout. A
// non-zero exit is not an error: stderr and the exit code are folded into
// Text so the caller sees what the command saw. Only dial failures,
// transport errors and timeouts surface as errors.
func (sv *Service) Exec(ctx context.Context, profile *models.ServerProfile, command string) (*ExecOutput, error) {
	client, err := sv.dialer.Dial(ctx, profile)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	timeout := sv.settings.ExecTimeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := runCommand(runCtx, client, profile.Host, command, sv.settings.OutputCap)
	if err != nil {
		var execErr *ExecError
		if !errors.As(err, &execErr) {
			return nil, err
		}
		if execErr.Kind != NonZeroExit && execErr.Kind != OutputTruncated {
			return nil, err
		}
	}
	return &ExecOutput{
		Text:       decorateOutput(res),
		ExitStatus: res.ExitStatus,
		Truncated:  res.Truncated,
		Duration:   res.Duration,
	}, nil
}

// decorateOutput renders the combined form consumers expect: plain stdout
// unless the command both failed and wrote to stderr.
func decorateOutput(res *ExecResult) string {
	if res.Stderr != "" && res.ExitStatus != 0 {
		return fmt.Sprintf("%s\n[stderr] %s\n[exit: %d]", res.Stdout, res.Stderr, res.ExitStatus)
	}
	return res.Stdout
}

// FileContent is a bounded view of a remote file.
type FileContent struct {
	Text      string
	Truncated bool
	Matches   int
}

// ReadFile fetches the head of a remote file, at most maxLines lines
// (settings default when zero). A non-empty token is counted client side as
// the number of returned lines containing it; the fetch itself is
// token-agnostic.
func (sv *Service) ReadFile(ctx context.Context, profile *models.ServerProfile, path, token string, maxLines int) (*FileContent, error) {
	client, err := sv.dialer.Dial(ctx, profile)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if maxLines <= 0 {
		maxLines = sv.settings.ReadMaxLines
	}
	text, truncated, err := readFile(ctx, client, profile.Host, path, maxLines, sv.settings.OutputCap)
	if err != nil {
		return nil, err
	}

	fc := &FileContent{Text: text, Truncated: truncated}
	if token != "" {
		for _, line := range strings.Split(text, "\n") {
			if strings.Contains(line, token) {
				fc.Matches++
			}
		}
	}
	return fc, nil
}

// SearchLogs fans a log-directory search out over the given profiles and
// returns the run handle immediately. Outcomes stream as hosts finish; the
// summary is ready once the outcome channel closes.
func (sv *Service) SearchLogs(ctx context.Context, profiles []models.ServerProfile, path, token string) *SearchRun {
	return sv.searcher.Search(ctx, profiles, path, token)
}

// TraceChain walks a forwarding chain for traceID starting from the first
// candidate that yields results. Hops are resolved against the stored
// profiles; when the store is unreadable the candidates themselves are the
// only resolvable hops.
func (sv *Service) TraceChain(ctx context.Context, candidates []models.ServerProfile, traceID, logPath string) (*TraceResult, error) {
	known, err := sv.store.List()
	if err != nil {
		sv.logger.Warn("profile list unavailable, resolving hops against candidates only", "error", err)
		known = candidates
	}
	return sv.tracer.Trace(ctx, candidates, traceID, logPath, known)
}

// OpenTerminal starts an interactive PTY session on the profile host.
func (sv *Service) OpenTerminal(ctx context.Context, profile *models.ServerProfile, cols, rows int) (string, <-chan Event, error) {
	return sv.terminals.Open(ctx, profile, cols, rows)
}

// SendInput forwards keystrokes to an open terminal session.
func (sv *Service) SendInput(sessionID string, data []byte) error {
	return sv.terminals.Input(sessionID, data)
}

// ResizeTerminal propagates a window size change to the remote PTY.
func (sv *Service) ResizeTerminal(sessionID string, cols, rows int) error {
	return sv.terminals.Resize(sessionID, cols, rows)
}

// CloseTerminal ends a terminal session. Unknown ids are a no-op.
func (sv *Service) CloseTerminal(sessionID string) {
	sv.terminals.Close(sessionID)
}
