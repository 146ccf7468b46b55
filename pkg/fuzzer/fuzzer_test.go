package fuzzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzhive/fuzzhive/pkg/apierrors"
	"github.com/fuzzhive/fuzzhive/pkg/types"
)

// fakeBinary writes an executable shell script standing in for ffuf and
// returns its path.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-ffuf")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestRunParsesJSONResults(t *testing.T) {
	bin := fakeBinary(t, `echo '{"results":[{"url":"https://t/admin","status":200,"length":512,"words":10,"lines":5}]}'`)
	r := New(bin)

	out, err := r.Run(context.Background(), "https://t/FUZZ", "/wordlists/common.txt", types.Options{})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "https://t/admin", out.Results[0].URL)
	assert.Equal(t, 200, out.Results[0].Status)
}

func TestRunNonZeroExitIsFuzzerFailure(t *testing.T) {
	bin := fakeBinary(t, `echo "boom" >&2; exit 1`)
	r := New(bin)

	_, err := r.Run(context.Background(), "https://t/FUZZ", "/wordlists/common.txt", types.Options{})
	require.Error(t, err)
	assert.Equal(t, apierrors.FuzzerFailure, apierrors.KindOf(err))
}

func TestRunMalformedOutputIsMalformedResult(t *testing.T) {
	bin := fakeBinary(t, `echo 'not json'`)
	r := New(bin)

	_, err := r.Run(context.Background(), "https://t/FUZZ", "/wordlists/common.txt", types.Options{})
	require.Error(t, err)
	assert.Equal(t, apierrors.MalformedResult, apierrors.KindOf(err))
}

func TestRunTimeoutIsFuzzerTimeout(t *testing.T) {
	bin := fakeBinary(t, `sleep 2`)
	r := New(bin)

	_, err := r.Run(context.Background(), "https://t/FUZZ", "/wordlists/common.txt", types.Options{Timeout: 1})
	require.Error(t, err)
	assert.Equal(t, apierrors.FuzzerTimeout, apierrors.KindOf(err))
}

func TestBuildArgsIncludesRecognizedOptions(t *testing.T) {
	args := buildArgs("https://t/FUZZ", "/wordlists/common.txt", types.Options{
		Method: "POST", Headers: []string{"X-Api-Key: x"}, Data: "a=b", Cookies: "session=1",
		Threads: 20, Rate: 100, FollowRedirects: true, Recursive: true,
	})
	assert.Contains(t, args, "-X")
	assert.Contains(t, args, "POST")
	assert.Contains(t, args, "-H")
	assert.Contains(t, args, "-d")
	assert.Contains(t, args, "-b")
	assert.Contains(t, args, "-rate")
	assert.Contains(t, args, "-recursion")
	assert.NotContains(t, args, "-fr=false")
}
