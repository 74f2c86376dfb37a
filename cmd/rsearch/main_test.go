package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kk-code-lab/rsearch/internal/grep"
	"github.com/kk-code-lab/rsearch/internal/search"
)

type testEnv struct {
	t   *testing.T
	dir string
}

// newTestEnv runs every command in a fresh working directory with an empty
// home so user config never leaks into the tests.
func newTestEnv(t *testing.T, files map[string]string) *testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(grep.WorkersEnv, "2")
	dir := t.TempDir()
	t.Chdir(dir)
	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return &testEnv{t: t, dir: dir}
}

func (e *testEnv) runErr(args ...string) (stdout, stderr string, err error) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func (e *testEnv) run(args ...string) string {
	e.t.Helper()
	out, errOut, err := e.runErr(args...)
	require.NoError(e.t, err, "rsearch %v\nstderr: %s", args, errOut)
	return out
}

var twoFiles = map[string]string{
	"a.txt": "foo\nbar\n",
	"b.txt": "foo\nfoo\n",
}

func TestGrep(t *testing.T) {
	env := newTestEnv(t, twoFiles)
	assert.Equal(t, "a.txt:1:foo\nb.txt:1:foo\nb.txt:2:foo\n", env.run("grep", "foo"))
}

func TestGrepInline(t *testing.T) {
	env := newTestEnv(t, twoFiles)
	assert.Equal(t, "a.txt:1:foo\nb.txt:1:foo\nb.txt:2:foo\n", env.run("grep", "--inline", "foo"))
}

func TestGrepCount(t *testing.T) {
	env := newTestEnv(t, twoFiles)
	assert.Equal(t, "a.txt:1\nb.txt:2\n", env.run("grep", "-c", "foo"))
	assert.Equal(t, "a.txt:1\nb.txt:2\n", env.run("grep", "--files-with-matches", "foo"))
}

func TestGrepContextGroups(t *testing.T) {
	env := newTestEnv(t, map[string]string{"c.txt": "a\nfoo\nb\nc\nd\nfoo\ne\n"})
	want := "c.txt-1-a\nc.txt:2:foo\nc.txt-3-b\n--\nc.txt-5-d\nc.txt:6:foo\nc.txt-7-e\n"
	assert.Equal(t, want, env.run("grep", "-C", "1", "foo"))
}

func TestGrepPagination(t *testing.T) {
	env := newTestEnv(t, twoFiles)

	out, errOut, err := env.runErr("grep", "-m", "1", "foo")
	require.NoError(t, err)
	assert.Equal(t, "a.txt:1:foo\n", out)
	assert.Contains(t, errOut, "continue with --offset 1")

	out, _, err = env.runErr("grep", "-m", "1", "--offset", "1", "foo")
	require.NoError(t, err)
	assert.Equal(t, "b.txt:1:foo\n", out)
}

func TestGrepCountPaginationHint(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "foo\nfoo\n", "b.txt": "foo\n"})

	out, errOut, err := env.runErr("grep", "-c", "-m", "2", "foo")
	require.NoError(t, err)
	assert.Equal(t, "a.txt:2\n", out)
	assert.Contains(t, errOut, "continue with --offset 2")

	// a.txt is still reported: its matches were skipped, not absent.
	out, errOut, err = env.runErr("grep", "-c", "-m", "1", "--offset", "2", "foo")
	require.NoError(t, err)
	assert.Equal(t, "a.txt:2\nb.txt:1\n", out)
	assert.Contains(t, errOut, "continue with --offset 3")
}

func TestGrepPaths(t *testing.T) {
	env := newTestEnv(t, map[string]string{"sub/x.txt": "foo\n", "a.txt": "foo\n"})
	assert.Equal(t, "sub/x.txt:1:foo\n", env.run("grep", "foo", "sub"))
	assert.Equal(t, "a.txt:1:foo\n", env.run("grep", "foo", "a.txt"))
}

func TestGrepFilters(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"main.go":      "foo\n",
		"web/app.js":   "foo\n",
		".hidden/x.go": "foo\n",
	})
	assert.Equal(t, ".hidden/x.go:1:foo\nmain.go:1:foo\n", env.run("grep", "-t", "go", "foo"))
	assert.Equal(t, "main.go:1:foo\n", env.run("grep", "-t", "go", "--no-hidden", "foo"))
	assert.Equal(t, "web/app.js:1:foo\n", env.run("grep", "-g", "*.js", "foo"))
}

func TestGrepMultiline(t *testing.T) {
	env := newTestEnv(t, map[string]string{"m.txt": "start\nmiddle\nend\n"})
	assert.Equal(t, "m.txt:1:start\nm.txt:2:middle\n", env.run("grep", "-U", "start\\nmid", "."))
}

func TestGrepJSON(t *testing.T) {
	env := newTestEnv(t, twoFiles)
	var res search.Result
	require.NoError(t, json.Unmarshal([]byte(env.run("grep", "--json", "foo")), &res))
	assert.Equal(t, 3, res.TotalMatches)
	assert.Equal(t, 2, res.FilesWithMatches)
	assert.Equal(t, 2, res.FilesSearched)
	assert.False(t, res.LimitReached)
}

func TestGrepSanitisesOutput(t *testing.T) {
	env := newTestEnv(t, map[string]string{"e.txt": "foo\x1b[31m\n"})
	assert.Equal(t, "e.txt:1:foo?[31m\n", env.run("grep", "foo"))
}

func TestGrepErrors(t *testing.T) {
	env := newTestEnv(t, twoFiles)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"invalid pattern", []string{"grep", "("}, "invalid pattern"},
		{"missing path", []string{"grep", "foo", "nope"}, "path not found"},
		{"unknown engine", []string{"grep", "--engine", "posix", "foo"}, "unknown regex engine"},
		{"negative context", []string{"grep", "-C", "-1", "foo"}, "must be >= 0"},
		{"bad timeout", []string{"grep", "--timeout", "soon", "foo"}, "--timeout"},
		{"bad log level", []string{"--log-level", "loud", "grep", "foo"}, "invalid log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.runErr(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFind(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"docs/Readme.md": "",
		"src/readme.go":  "",
		"src/other.go":   "",
		".readme":        "",
	})
	assert.Equal(t, "docs/Readme.md\nsrc/readme.go\n", env.run("find", "readme"))
	assert.Equal(t, ".readme\ndocs/Readme.md\nsrc/readme.go\n", env.run("find", "--hidden", "readme"))

	out, errOut, err := env.runErr("find", "--max-results", "1", "readme")
	require.NoError(t, err)
	assert.Equal(t, "docs/Readme.md\n", out)
	assert.Contains(t, errOut, "showing 1 of 2 paths")

	var res search.FindResult
	require.NoError(t, json.Unmarshal([]byte(env.run("find", "--json", "other")), &res))
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "src/other.go", res.Matches[0].Path)
}

func TestConfig(t *testing.T) {
	env := newTestEnv(t, nil)

	out := env.run("config")
	assert.Contains(t, out, "pool.max_workers: ")
	assert.Contains(t, out, "search.engine: re2 (default)")

	assert.Equal(t, "search.context = 1 (global)\n", env.run("config", "search.context", "1"))
	assert.Equal(t, "1\n", env.run("config", "search.context"))

	assert.Equal(t, "search.engine = pcre (local)\n", env.run("config", "--local", "search.engine", "pcre"))
	assert.Equal(t, "pcre\n", env.run("config", "search.engine"))
	assert.Equal(t, "0\n", env.run("config", "search.context"), "local config replaces global")

	_, _, err := env.runErr("config", "search.nope", "1")
	assert.Error(t, err)
	_, _, err = env.runErr("config", "pool.max_workers", "0")
	assert.Error(t, err)
}

func TestConfigDrivesGrepDefaults(t *testing.T) {
	env := newTestEnv(t, map[string]string{"c.txt": "a\nfoo\nb\n"})
	env.run("config", "--local", "search.context", "1")
	assert.Equal(t, "c.txt-1-a\nc.txt:2:foo\nc.txt-3-b\n", env.run("grep", "foo"))
	assert.Equal(t, "c.txt:2:foo\n", env.run("grep", "-C", "0", "foo"))
}

func TestDisplayPath(t *testing.T) {
	assert.Equal(t, "a.txt", displayPath([]string{"p"})("a.txt"))
	assert.Equal(t, "src/a.txt", displayPath([]string{"p", "src/"})("a.txt"))
	assert.Equal(t, "one.txt", displayPath([]string{"p", "one.txt"})(filepath.Join(string(filepath.Separator), "x", "one.txt")))
}
