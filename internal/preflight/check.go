package preflight

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Aman-CERP/lockerindex/internal/coordinator"
	"github.com/Aman-CERP/lockerindex/internal/datastore"
)

// DefaultLockerTimeout bounds the locker reachability probe.
const DefaultLockerTimeout = 3 * time.Second

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Targets names what RunAll checks. Empty fields skip their checks.
type Targets struct {
	IndexPath     string
	DatastorePath string
	LockerURL     string
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
	client  *http.Client
	timeout time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithHTTPClient sets the client used to probe the locker.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithLockerTimeout bounds the locker probe.
func WithLockerTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.timeout = d
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output:  os.Stdout,
		client:  http.DefaultClient,
		timeout: DefaultLockerTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check that applies to t.
func (c *Checker) RunAll(ctx context.Context, t Targets) []CheckResult {
	var results []CheckResult

	if t.IndexPath != "" {
		results = append(results, c.CheckWritePermissions(t.IndexPath))
		results = append(results, c.CheckDiskSpace(t.IndexPath))
		results = append(results, c.CheckIndexLock(t.IndexPath))
	}
	results = append(results, c.CheckFileDescriptors())
	if t.LockerURL != "" {
		results = append(results, c.CheckLocker(ctx, t.LockerURL))
	}
	if t.DatastorePath != "" {
		results = append(results, c.CheckDatastore(t.DatastorePath))
	}

	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false

	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "lockerindex system check")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))
}

// CheckWritePermissions checks that the index directory can be created
// and written.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{
		Name:     "index_writable",
		Required: true,
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", path, err)
		return result
	}

	f, err := os.CreateTemp(path, ".preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	result.Details = path
	return result
}

// CheckIndexLock reports whether another process is writing the index.
func (c *Checker) CheckIndexLock(indexPath string) CheckResult {
	result := CheckResult{Name: "index_lock"}

	lock := coordinator.NewIndexLock(indexPath)
	acquired, err := lock.TryLock()
	switch {
	case err != nil:
		result.Status = StatusWarn
		result.Message = err.Error()
	case !acquired:
		result.Status = StatusWarn
		result.Message = "held by another process; gather and reset will refuse to run"
		result.Details = lock.Path()
	default:
		_ = lock.Unlock()
		result.Status = StatusPass
		result.Message = "free"
		result.Details = lock.Path()
	}
	return result
}

// CheckLocker probes the locker base URL. Any HTTP response counts as
// reachable; only transport failures fail the check.
func (c *Checker) CheckLocker(ctx context.Context, baseURL string) CheckResult {
	result := CheckResult{
		Name:     "locker",
		Required: true,
		Details:  baseURL,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/", nil)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("invalid url: %v", err)
		return result
	}
	resp, err := c.client.Do(req)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unreachable: %v", err)
		return result
	}
	_ = resp.Body.Close()

	result.Status = StatusPass
	result.Message = fmt.Sprintf("reachable (HTTP %d)", resp.StatusCode)
	return result
}

// CheckDatastore opens the journal database. Failure only disables
// journaling, so it is not required.
func (c *Checker) CheckDatastore(path string) CheckResult {
	result := CheckResult{Name: "datastore", Details: path}

	store, err := datastore.Open(path, 0)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	_ = store.Close()

	result.Status = StatusPass
	result.Message = "OK"
	return result
}
