// Package fuzzer invokes the external ffuf binary on behalf of a worker
// and parses its JSON output. It wraps os/exec with exec.CommandContext,
// buffered stdout/stderr, and a hard wall-clock timeout.
package fuzzer

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"time"

	"github.com/fuzzhive/fuzzhive/pkg/apierrors"
	"github.com/fuzzhive/fuzzhive/pkg/metrics"
	"github.com/fuzzhive/fuzzhive/pkg/types"
)

// Runner invokes the fuzzer binary. Binary defaults to "ffuf" (resolved
// via PATH) when empty.
type Runner struct {
	Binary string
}

// New returns a Runner against the given binary path, or "ffuf" on PATH
// when path is empty.
func New(path string) *Runner {
	if path == "" {
		path = "ffuf"
	}
	return &Runner{Binary: path}
}

// Run builds the ffuf invocation for target/wordlistPath/opts, waits up
// to opts.Timeout seconds (default 7200), and parses stdout as a single
// JSON document with a "results" array.
func (r *Runner) Run(ctx context.Context, target, wordlistPath string, opts types.Options) (*types.FuzzerOutput, error) {
	opts = opts.WithDefaults()
	timer := metrics.NewTimer()

	timeout := time.Duration(opts.Timeout) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Binary, buildArgs(target, wordlistPath, opts)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	timer.ObserveDuration(metrics.FuzzerDuration)

	if runCtx.Err() == context.DeadlineExceeded {
		metrics.FuzzerInvocations.WithLabelValues("timeout").Inc()
		return nil, apierrors.New(apierrors.FuzzerTimeout, "ffuf exceeded %s timeout", timeout)
	}
	if err != nil {
		metrics.FuzzerInvocations.WithLabelValues("failure").Inc()
		return nil, apierrors.New(apierrors.FuzzerFailure, "ffuf exited with error: %v, stderr: %s", err, stderr.String())
	}

	var out types.FuzzerOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		metrics.FuzzerInvocations.WithLabelValues("malformed_output").Inc()
		return nil, apierrors.Wrap(apierrors.MalformedResult, err)
	}
	metrics.FuzzerInvocations.WithLabelValues("success").Inc()
	return &out, nil
}

// buildArgs builds the ffuf invocation: target, wordlist, then the
// recognized options bag, always forcing JSON output to stdout.
func buildArgs(target, wordlistPath string, opts types.Options) []string {
	args := []string{"-u", target, "-w", wordlistPath}

	if opts.Method != "" {
		args = append(args, "-X", opts.Method)
	}
	for _, header := range opts.Headers {
		args = append(args, "-H", header)
	}
	if opts.Data != "" {
		args = append(args, "-d", opts.Data)
	}
	if opts.Cookies != "" {
		args = append(args, "-b", opts.Cookies)
	}

	args = append(args, "-o", "-", "-of", "json")

	args = append(args, "-t", strconv.Itoa(opts.Threads))

	if opts.Rate > 0 {
		args = append(args, "-rate", strconv.Itoa(opts.Rate))
	}
	if !opts.FollowRedirects {
		args = append(args, "-fr=false")
	}
	if opts.Recursive {
		args = append(args, "-recursion")
	}

	return args
}
