package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"

	"hoptrace/internal/models"
)

// Gateway log lines carry hop markers of the form
// "...DESTDUS=<hop id>|...PEER=<ip>...". The hop id prefix classifies the
// hop: B and C ids are service nodes worth following, G ids are routers and
// terminate the branch. Hosts whose gateway logs show nothing traceable are
// scanned a second time through their application logs, which mark the
// transaction with a "dusCode" field instead.

// ChainNode is one hop discovered while following trace markers. Addr is
// the host whose logs produced the node; Children hold what the PEER
// address revealed when it was followed.
type ChainNode struct {
	Filename string       `json:"filename"`
	HopID    string       `json:"hop_id"`
	Addr     string       `json:"addr"`
	LogPath  string       `json:"log_path"`
	Children []*ChainNode `json:"children,omitempty"`
}

// TraceResult is the outcome of one chain trace run: the node forest found
// on the winning candidate root, a human-readable line per attempted step,
// the total node count and the wall time.
type TraceResult struct {
	Nodes     []*ChainNode
	Log       []string
	TotalHops int
	Duration  time.Duration
}

func (r *TraceResult) logf(format string, args ...any) {
	r.Log = append(r.Log, fmt.Sprintf(format, args...))
}

// hopEntry is one parsed gateway log line: "<file> <hop id> <peer ip>".
type hopEntry struct {
	filename string
	hopID    string
	peer     string
}

// Tracer reconstructs the chain of hosts a transaction travelled through,
// starting from operator-chosen candidate roots.
type Tracer struct {
	dialer   *Dialer
	maxDepth int
	byteCap  int
	logger   *log.Logger
}

// NewTracer creates a Tracer. maxDepth bounds the recursion in addition to
// the visited-set cycle guard.
func NewTracer(dialer *Dialer, maxDepth, byteCap int, logger *log.Logger) *Tracer {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Tracer{dialer: dialer, maxDepth: maxDepth, byteCap: byteCap, logger: logger}
}

// Trace tries the candidate roots in declared order and returns the tree of
// the first candidate whose logs mention the trace id; later candidates are
// not attempted. Peer addresses resolve against known; unresolved peers are
// recorded in the log and end their branch. When no candidate matches, the
// result carries the full log and ErrChainTraceExhausted.
func (t *Tracer) Trace(ctx context.Context, candidates []models.ServerProfile, traceID, logPath string, known []models.ServerProfile) (*TraceResult, error) {
	start := time.Now()
	result := &TraceResult{}

	byAddr := make(map[string]models.ServerProfile, len(known))
	for _, p := range known {
		byAddr[p.Host] = p
	}

	result.logf("=== Starting chain trace ===")
	result.logf("Trace ID: %s", traceID)
	result.logf("Log path: %s", logPath)

	for _, root := range candidates {
		result.logf("")
		result.logf("[ROOT] Trying candidate %s", root.Host)
		nodes := t.traceHost(ctx, root, traceID, logPath, byAddr, map[string]bool{}, 0, result)
		if len(nodes) > 0 {
			result.Nodes = nodes
			result.TotalHops = countNodes(nodes)
			result.logf("")
			result.logf("=== Trace complete: %d nodes discovered ===", result.TotalHops)
			result.Duration = time.Since(start)
			t.logger.Debug("chain trace finished", "root", root.Host, "nodes", result.TotalHops)
			return result, nil
		}
		result.logf("[ROOT] No match on %s, moving to next candidate", root.Host)
	}

	result.logf("")
	result.logf("=== Trace complete: no matches on any candidate ===")
	result.Duration = time.Since(start)
	return result, ErrChainTraceExhausted
}

// traceHost scans one host's gateway logs for the trace id and recurses
// into resolved peers. The visited set is path-scoped: every call works on
// its own copy, so sibling branches never shadow each other and any cycle
// terminates at the revisited host.
func (t *Tracer) traceHost(ctx context.Context, profile models.ServerProfile, traceID, logPath string, known map[string]models.ServerProfile, visited map[string]bool, depth int, result *TraceResult) []*ChainNode {
	if depth >= t.maxDepth {
		result.logf("[WARN] Max depth %d reached at %s", t.maxDepth, profile.Host)
		return nil
	}
	if visited[profile.Host] {
		result.logf("[SKIP] Already visited: %s", profile.Host)
		return nil
	}
	visited = copyVisited(visited)
	visited[profile.Host] = true

	result.logf("[%d] Searching on %s ...", depth+1, profile.Host)

	client, err := t.dialer.Dial(ctx, &profile)
	if err != nil {
		result.logf("[ERROR] Failed to trace %s: %v", profile.Host, err)
		return nil
	}
	defer client.Close()

	entries, err := t.scanGatewayLogs(ctx, client, profile.Host, traceID, logPath)
	if err != nil {
		result.logf("[ERROR] Failed to trace %s: %v", profile.Host, err)
		return nil
	}

	// Fall back to the application logs when the gateway logs show nothing
	// traceable: no entries at all, or router entries only.
	var fallbackNodes []*ChainNode
	if len(entries) == 0 || !hasTraceableHop(entries) {
		result.logf("[%d] Checking backup app logs on %s...", depth+1, profile.Host)
		fallbackNodes = t.scanAppLogs(ctx, client, profile.Host, traceID, logPath, result)
	}

	if len(entries) == 0 && len(fallbackNodes) == 0 {
		result.logf("[%d] No results found on %s", depth+1, profile.Host)
		return nil
	}
	if len(entries) > 0 {
		result.logf("[%d] Found %d entries on %s", depth+1, len(entries), profile.Host)
	}

	var nodes []*ChainNode
	for _, entry := range entries {
		node := &ChainNode{
			Filename: entry.filename,
			HopID:    entry.hopID,
			Addr:     profile.Host,
			LogPath:  logPath,
		}
		kind := "router node"
		if isTraceableHop(entry.hopID) {
			kind = "chain node"
		}
		result.logf("  -> %s %s %s (%s)", entry.filename, entry.hopID, entry.peer, kind)

		if isTraceableHop(entry.hopID) {
			if next, ok := known[entry.peer]; ok {
				node.Children = t.traceHost(ctx, next, traceID, logPath, known, visited, depth+1, result)
			} else {
				result.logf("[ERROR] Next hop %s is not a known server; add it to the profiles to trace further", entry.peer)
			}
		}
		nodes = append(nodes, node)
	}

	return append(nodes, fallbackNodes...)
}

// scanGatewayLogs greps every *log* file directly under logPath for lines
// carrying the trace id and a PEER marker, reduced server-side to
// "<file> <hop id> <peer ip>" tuples.
func (t *Tracer) scanGatewayLogs(ctx context.Context, client *ssh.Client, host, traceID, logPath string) ([]hopEntry, error) {
	cmd := fmt.Sprintf(
		`cd %s && find . -maxdepth 1 -name "*log*" -print0 | xargs -0 -P $(nproc) grep -H -F %s 2>/dev/null | grep -F 'PEER' | sed -n 's/^\([^:]*\):.*DESTDUS=\([^|]*\).*PEER=\([0-9.]*\).*/\1 \2 \3/p' | grep -v 'N/A' | sort -u`,
		shellQuote(logPath), shellQuote(traceID),
	)
	res, err := runCommand(ctx, client, host, cmd, t.byteCap)
	if err != nil {
		// The pipeline exits non-zero when nothing matched; that is an
		// empty result, not a failure.
		var execErr *ExecError
		if !errors.As(err, &execErr) || execErr.Kind != NonZeroExit {
			return nil, err
		}
	}

	var entries []hopEntry
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		entries = append(entries, hopEntry{
			filename: strings.TrimPrefix(fields[0], "./"),
			hopID:    fields[1],
			peer:     fields[2],
		})
	}
	return entries, nil
}

// scanAppLogs is the fallback scan over *app*log* files for dusCode
// markers. Matches become terminal nodes attributed to the current host;
// fallback hops are never followed.
func (t *Tracer) scanAppLogs(ctx context.Context, client *ssh.Client, host, traceID, logPath string, result *TraceResult) []*ChainNode {
	cmd := fmt.Sprintf(
		`cd %s && find . -maxdepth 1 -name "*app*log*" -print0 | xargs -0 -P $(nproc) grep -H -F %s 2>/dev/null | awk -F: '/dusCode/ { filename = $1; sub(/^\.\//, "", filename); text = $0; sub(/.*dusCode : /, "", text); split(text, codes, " "); print filename, " ", codes[1] }'`,
		shellQuote(logPath), shellQuote(traceID),
	)
	res, err := runCommand(ctx, client, host, cmd, t.byteCap)
	if err != nil {
		var execErr *ExecError
		if !errors.As(err, &execErr) || execErr.Kind != NonZeroExit {
			result.logf("[ERROR] Backup scan failed on %s: %v", host, err)
			return nil
		}
	}

	var nodes []*ChainNode
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		nodes = append(nodes, &ChainNode{
			Filename: fields[0],
			HopID:    fields[1],
			Addr:     host,
			LogPath:  logPath,
		})
		result.logf("  -> [Fallback] found %s %s on %s", fields[0], fields[1], host)
	}
	return nodes
}

// isTraceableHop reports whether the hop id names a service node (B or C
// class) rather than a router (G class).
func isTraceableHop(hopID string) bool {
	return strings.HasPrefix(hopID, "B") || strings.HasPrefix(hopID, "C")
}

func hasTraceableHop(entries []hopEntry) bool {
	for _, e := range entries {
		if isTraceableHop(e.hopID) {
			return true
		}
	}
	return false
}

func copyVisited(visited map[string]bool) map[string]bool {
	c := make(map[string]bool, len(visited)+1)
	for k, v := range visited {
		c[k] = v
	}
	return c
}

func countNodes(nodes []*ChainNode) int {
	total := 0
	for _, n := range nodes {
		total += 1 + countNodes(n.Children)
	}
	return total
}
