package ssh

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/semaphore"

	"hoptrace/internal/models"
)

// LogFileMatch is one remote file that matched a search pass.
type LogFileMatch struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	MatchCount int    `json:"match_count"`
}

// SearchOutcome is the per-host result of one search pass. Exactly one is
// produced per host per run; a host failure fills Err and leaves the rest
// zeroed.
type SearchOutcome struct {
	ProfileID    string
	Host         string
	Files        []LogFileMatch
	TotalMatches int
	Duration     time.Duration
	Err          error
}

// SearchSummary is the derived aggregate over one run, available once every
// host has reported.
type SearchSummary struct {
	Hosts        int
	FailedHosts  int
	TotalFiles   int
	TotalMatches int
	Duration     time.Duration
}

// SearchRun is a handle on one in-flight multi-host search.
type SearchRun struct {
	outcomes chan SearchOutcome
	done     chan struct{}
	summary  SearchSummary
}

// Outcomes streams per-host results in completion order. The channel closes
// after the last host has reported.
func (r *SearchRun) Outcomes() <-chan SearchOutcome {
	return r.outcomes
}

// Summary blocks until every host has reported, then returns the aggregate.
func (r *SearchRun) Summary() SearchSummary {
	<-r.done
	return r.summary
}

// Searcher fans a log search out across many hosts at once. Hosts are
// searched independently: one host failing, hanging or crawling never
// delays or suppresses another host's outcome.
type Searcher struct {
	dialer  *Dialer
	workers int64
	byteCap int
	logger  *log.Logger
}

// NewSearcher creates a Searcher that dials with the given Dialer and runs
// at most workers host searches concurrently.
func NewSearcher(dialer *Dialer, workers int64, byteCap int, logger *log.Logger) *Searcher {
	if workers <= 0 {
		workers = 8
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Searcher{dialer: dialer, workers: workers, byteCap: byteCap, logger: logger}
}

// Search starts one search pass over the given profiles and returns
// immediately. Per host it lists files under path whose name contains
// "log" and, when token is non-empty, counts token matches per file,
// dropping files without matches. Outcomes stream as hosts finish.
func (s *Searcher) Search(ctx context.Context, profiles []models.ServerProfile, path, token string) *SearchRun {
	run := &SearchRun{
		outcomes: make(chan SearchOutcome, len(profiles)),
		done:     make(chan struct{}),
	}

	start := time.Now()
	sem := semaphore.NewWeighted(s.workers)
	inner := make(chan SearchOutcome)

	var wg sync.WaitGroup
	for i := range profiles {
		wg.Add(1)
		go func(profile models.ServerProfile) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				inner <- SearchOutcome{ProfileID: profile.ID, Host: profile.Host, Err: err}
				return
			}
			defer sem.Release(1)
			inner <- s.searchHost(ctx, profile, path, token)
		}(profiles[i])
	}

	go func() {
		wg.Wait()
		close(inner)
	}()

	// Single forwarder: accumulates the aggregate and is the only writer
	// and closer of the outcome stream.
	go func() {
		for outcome := range inner {
			run.summary.Hosts++
			if outcome.Err != nil {
				run.summary.FailedHosts++
			}
			run.summary.TotalFiles += len(outcome.Files)
			run.summary.TotalMatches += outcome.TotalMatches
			run.outcomes <- outcome
		}
		run.summary.Duration = time.Since(start)
		close(run.outcomes)
		close(run.done)
	}()

	return run
}

// searchHost runs the full pass against a single host: dial, list log
// files, count matches per file.
func (s *Searcher) searchHost(ctx context.Context, profile models.ServerProfile, path, token string) SearchOutcome {
	start := time.Now()
	outcome := SearchOutcome{ProfileID: profile.ID, Host: profile.Host}
	defer func() { outcome.Duration = time.Since(start) }()

	client, err := s.dialer.Dial(ctx, &profile)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	defer client.Close()

	files, err := listLogFiles(ctx, client, profile.Host, path, s.byteCap)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	for _, filePath := range files {
		match := LogFileMatch{Path: filePath, Name: baseName(filePath)}
		if token != "" {
			count, err := countMatches(ctx, client, profile.Host, filePath, token, s.byteCap)
			if err != nil {
				outcome.Err = err
				return outcome
			}
			match.MatchCount = count
		}
		outcome.TotalMatches += match.MatchCount
		outcome.Files = append(outcome.Files, match)
	}

	// With a token, files without matches are noise: drop them and rank
	// the rest by match count.
	if token != "" {
		kept := outcome.Files[:0]
		for _, f := range outcome.Files {
			if f.MatchCount > 0 {
				kept = append(kept, f)
			}
		}
		outcome.Files = kept
		sort.SliceStable(outcome.Files, func(i, j int) bool {
			return outcome.Files[i].MatchCount > outcome.Files[j].MatchCount
		})
	}

	s.logger.Debug("host search finished",
		"host", profile.Host, "files", len(outcome.Files), "matches", outcome.TotalMatches)
	return outcome
}

// listLogFiles returns the paths of plain files directly under path whose
// name contains "log", capped at 100 entries.
func listLogFiles(ctx context.Context, client *ssh.Client, host, path string, byteCap int) ([]string, error) {
	cmd := fmt.Sprintf("find %s -maxdepth 1 -type f -name '*log*' 2>/dev/null | head -100", shellQuote(path))
	res, err := runCommand(ctx, client, host, cmd, byteCap)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// countMatches counts lines of the file containing the token. The trailing
// "|| echo 0" keeps the exit status clean when the token is absent.
func countMatches(ctx context.Context, client *ssh.Client, host, filePath, token string, byteCap int) (int, error) {
	cmd := fmt.Sprintf("grep -c %s %s 2>/dev/null || echo 0", shellQuote(token), shellQuote(filePath))
	res, err := runCommand(ctx, client, host, cmd, byteCap)
	if err != nil {
		return 0, err
	}

	count, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		return 0, nil
	}
	return count, nil
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
