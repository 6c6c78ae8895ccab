package transport

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teris-io/shortid"
)

// AuditEventKind enumerates the events a pipeline may append to an Auditor
// while serving one request (§3 Audit entry).
type AuditEventKind int

const (
	SniffOnStartup AuditEventKind = iota
	SniffOnFail
	SniffOnStaleCluster
	SniffSuccess
	SniffFailure
	PingSuccess
	PingFailure
	HealthyResponse
	BadResponse
	BadRequest
	MaxRetriesReached
	MaxTimeoutReached
	FailedOverAllNodes
	NoNodesAttempted
	CancellationRequested
	Resurrection
)

func (k AuditEventKind) String() string {
	switch k {
	case SniffOnStartup:
		return "SniffOnStartup"
	case SniffOnFail:
		return "SniffOnFail"
	case SniffOnStaleCluster:
		return "SniffOnStaleCluster"
	case SniffSuccess:
		return "SniffSuccess"
	case SniffFailure:
		return "SniffFailure"
	case PingSuccess:
		return "PingSuccess"
	case PingFailure:
		return "PingFailure"
	case HealthyResponse:
		return "HealthyResponse"
	case BadResponse:
		return "BadResponse"
	case BadRequest:
		return "BadRequest"
	case MaxRetriesReached:
		return "MaxRetriesReached"
	case MaxTimeoutReached:
		return "MaxTimeoutReached"
	case FailedOverAllNodes:
		return "FailedOverAllNodes"
	case NoNodesAttempted:
		return "NoNodesAttempted"
	case CancellationRequested:
		return "CancellationRequested"
	case Resurrection:
		return "Resurrection"
	default:
		return "Unknown"
	}
}

// AuditEntry is one immutable entry in a request's audit trail. Node and
// error references are recorded as stable value copies (§9 design notes),
// never as shared mutable pointers.
type AuditEntry struct {
	Event        AuditEventKind
	Timestamp    time.Time
	Node         string // normalized node URI, empty when not applicable
	PathAndQuery string
	Err          error
}

func (e AuditEntry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s @ %s", e.Event, e.Timestamp.Format(time.RFC3339Nano))
	if e.Node != "" {
		fmt.Fprintf(&b, " node=%s", e.Node)
	}
	if e.PathAndQuery != "" {
		fmt.Fprintf(&b, " path=%s", e.PathAndQuery)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " err=%v", e.Err)
	}
	return b.String()
}

// Auditor is the append-only trail of events produced while serving a
// single logical request. It is owned by the RequestPipeline for the
// lifetime of one request (§3 Ownership) and is safe to read concurrently
// with appends, though in practice a single pipeline only ever appends from
// its own goroutine.
type Auditor struct {
	mu      sync.Mutex
	clock   Clock
	opaque  string
	entries []AuditEntry
}

// NewAuditor creates an empty trail stamped by clock. opaqueID, when empty,
// is generated via shortid the way cmn.GenUUID does for the teacher's
// request-correlation identifiers.
func NewAuditor(clk Clock, opaqueID string) *Auditor {
	if clk == nil {
		clk = RealClock
	}
	if opaqueID == "" {
		opaqueID = genShortID()
	}
	return &Auditor{clock: clk, opaque: opaqueID}
}

// alphabet mirrors the teacher's cmn.uuidABC: a shortid alphabet tuned so
// generated ids read as human-distinguishable tokens in logs.
const idAlphabet = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	shortIDOnce sync.Once
	shortIDGen  *shortid.Shortid
)

func genShortID() string {
	shortIDOnce.Do(func() {
		shortIDGen, _ = shortid.New(1, idAlphabet, 1)
	})
	if shortIDGen == nil {
		return ""
	}
	id, err := shortIDGen.Generate()
	if err != nil {
		return ""
	}
	return id
}

// OpaqueID is the correlation id attached to X-Opaque-Id when configured.
func (a *Auditor) OpaqueID() string { return a.opaque }

// Append records one event. Timestamps are drawn from the configured clock
// and are monotonically non-decreasing (§8 A6) because Clock.Now() is
// monotonic and Append is only ever called from the single goroutine driving
// one request.
func (a *Auditor) Append(kind AuditEventKind, node *Node, pathAndQuery string, err error) {
	e := AuditEntry{Event: kind, Timestamp: a.clock.Now(), PathAndQuery: pathAndQuery, Err: err}
	if node != nil {
		e.Node = node.NormalizedKey()
	}
	a.mu.Lock()
	if n := len(a.entries); n > 0 && e.Timestamp.Before(a.entries[n-1].Timestamp) {
		e.Timestamp = a.entries[n-1].Timestamp
	}
	a.entries = append(a.entries, e)
	a.mu.Unlock()
}

// Entries returns a snapshot copy of the trail so far.
func (a *Auditor) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Has reports whether any entry of the given kind was recorded.
func (a *Auditor) Has(kind AuditEventKind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		if e.Event == kind {
			return true
		}
	}
	return false
}
