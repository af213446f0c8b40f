package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Browser signature presented by the process transport. It differs from the
// session signature on purpose so the two transports are fingerprinted separately.
const (
	ProcessUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:147.0) Gecko/20100101 Firefox/147.0"
	DefaultCurlPath  = "curl"
)

// statusMarker separates the body from the status code appended by --write-out.
const statusMarker = "\n__bookmeta_status__:"

// processWaitDelay bounds how long pipes are drained after the process is killed.
const processWaitDelay = 2 * time.Second

var processHeaders = []string{
	"accept: application/json, text/plain, */*",
	"accept-language: en-US,en;q=0.9",
	"cache-control: max-age=0",
	`sec-ch-ua: "Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
	"sec-ch-ua-mobile: ?0",
	`sec-ch-ua-platform: "Windows"`,
	"sec-fetch-dest: document",
	"sec-fetch-mode: navigate",
	"sec-fetch-site: none",
	"sec-fetch-user: ?1",
	"upgrade-insecure-requests: 1",
}

// Runner executes an external command and returns its captured output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec. The process is killed when ctx ends.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = processWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ProcessTransport fetches by invoking an external HTTP client (curl).
type ProcessTransport struct {
	path   string
	runner Runner
}

// NewProcessTransport creates a process transport. An empty path means "curl" on PATH;
// a nil runner means ExecRunner.
func NewProcessTransport(path string, runner Runner) *ProcessTransport {
	if path == "" {
		path = DefaultCurlPath
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &ProcessTransport{path: path, runner: runner}
}

// Name returns the transport identifier.
func (t *ProcessTransport) Name() string {
	return "process"
}

// Fetch retrieves req.URL through the external client.
func (t *ProcessTransport) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return nil, &Error{
			URL:       req.URL,
			Transport: t.Name(),
			Kind:      KindInvalidURL,
			Message:   "invalid URL",
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, err := t.runner.Run(ctx, t.path, processArgs(req, timeout)...)
	if err != nil {
		kind := KindProcess
		msg := "external client failed"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
			msg = "external client timed out"
		}
		if text := strings.TrimSpace(string(stderr)); text != "" {
			msg = fmt.Sprintf("%s: %s", msg, text)
		}
		return nil, &Error{
			URL:       req.URL,
			Transport: t.Name(),
			Kind:      kind,
			Message:   msg,
			Cause:     err,
		}
	}

	body, status, err := splitStatus(stdout)
	if err != nil {
		return nil, &Error{
			URL:       req.URL,
			Transport: t.Name(),
			Kind:      KindProcess,
			Message:   "could not read status from external client output",
			Cause:     err,
		}
	}

	if err := classifyResponse(req.URL, t.Name(), status, "", body); err != nil {
		return nil, err
	}
	return body, nil
}

// processArgs builds the curl argument list. The URL is always last.
func processArgs(req Request, timeout time.Duration) []string {
	seconds := int(math.Ceil(timeout.Seconds()))
	if seconds < 1 {
		seconds = 1
	}

	args := []string{
		"-L",
		"--silent",
		"--show-error",
		"-A", ProcessUserAgent,
	}
	for _, h := range processHeaders {
		args = append(args, "-H", h)
	}
	if req.Credential != "" {
		args = append(args, "-H", fmt.Sprintf("Cookie: %s=%s", ClearanceCookie, req.Credential))
	}
	args = append(args,
		"--compressed",
		"--max-time", strconv.Itoa(seconds),
		"--write-out", statusMarker+"%{http_code}",
		req.URL,
	)
	return args
}

// splitStatus separates the response body from the trailing status marker.
func splitStatus(out []byte) ([]byte, int, error) {
	idx := bytes.LastIndex(out, []byte(statusMarker))
	if idx < 0 {
		return nil, 0, errors.New("status marker not found")
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(out[idx+len(statusMarker):])))
	if err != nil {
		return nil, 0, fmt.Errorf("invalid status code: %w", err)
	}
	return out[:idx], code, nil
}
