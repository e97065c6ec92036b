package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeGraph(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.json")
	body := `{"nodes":[{"id":1,"name":"one"},{"id":2,"name":"two"},{"id":3,"name":"three"}],
		"links":[{"source":1,"target":2},{"source":2,"target":3},{"source":3,"target":9}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRenderToStdout(t *testing.T) {
	out, err := execute(t, "render", "--data", writeGraph(t), "--format", "json")
	require.NoError(t, err)

	var frame struct {
		State string `json:"state"`
		Nodes []struct {
			ID string `json:"id"`
		} `json:"nodes"`
		Links []json.RawMessage `json:"links"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &frame))
	assert.Equal(t, "resting", frame.State)
	assert.Len(t, frame.Nodes, 3)
	assert.Len(t, frame.Links, 2, "dangling link dropped")
}

func TestRenderFormatFromOutputExtension(t *testing.T) {
	dir := t.TempDir()
	for _, tt := range []struct {
		file     string
		contains string
	}{
		{"graph.svg", "<svg"},
		{"graph.dot", "graph G {"},
		{"graph.out", "<svg"},
	} {
		output := filepath.Join(dir, tt.file)
		_, err := execute(t, "render", "--data", writeGraph(t), "--output", output, "--zoom", "2", "--pan-x", "10")
		require.NoError(t, err, tt.file)
		b, err := os.ReadFile(output)
		require.NoError(t, err)
		assert.Contains(t, string(b), tt.contains, tt.file)
	}
}

func TestRenderZoomShowsInTransform(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--zoom", "2"}, `transform="matrix(2 0 0 2 -400 -300)"`},
		{[]string{"--zoom", "2", "--focal-x", "0", "--focal-y", "0"}, `transform="matrix(2 0 0 2 0 0)"`},
		{[]string{"--zoom", "2", "--focal-x", "-100", "--focal-y", "-50"}, `transform="matrix(2 0 0 2 100 50)"`},
		{[]string{"--zoom", "2", "--focal-x", "0"}, `transform="matrix(2 0 0 2 0 -300)"`},
		{[]string{"--pan-x", "15", "--pan-y", "-5"}, `transform="matrix(1 0 0 1 15 -5)"`},
	}
	for _, tt := range tests {
		args := append([]string{"render", "--data", writeGraph(t), "--format", "svg"}, tt.args...)
		out, err := execute(t, args...)
		require.NoError(t, err)
		assert.Contains(t, out, tt.want, tt.args)
	}
}

func TestRenderErrors(t *testing.T) {
	_, err := execute(t, "render")
	assert.Error(t, err, "data is required")

	_, err = execute(t, "render", "--data", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, "render", "--data", writeGraph(t), "--zoom", "-1")
	assert.Error(t, err)

	_, err = execute(t, "render", "--data", writeGraph(t), "--format", "png")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestRenderUsesConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "forcegraph.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("projector:\n  width: 400\n  height: 200\n"), 0o644))

	out, err := execute(t, "--config", cfgPath, "render", "--data", writeGraph(t), "--format", "svg")
	require.NoError(t, err)
	assert.Contains(t, out, `width="400"`)
	assert.Contains(t, out, `height="200"`)

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "render", "--data", writeGraph(t))
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	db := filepath.Join(t.TempDir(), "graph.db")
	out, err := execute(t, "seed", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "3 conversations")
	assert.Contains(t, out, "Conversation 3")

	out, err = execute(t, "seed", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "3 conversations", "seeding twice is a no-op")

	out, err = execute(t, "seed", "--db", db, "--reseed")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(out, "\n"))
}
