package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/TFMV/forcegraph/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONProcessor(t *testing.T) {
	input := `{
		"nodes": [{"id": 1, "name": "one"}, {"id": "2", "name": "two"}, {"id": 3}],
		"links": [{"source": 1, "target": "2"}],
		"edges": [{"source": "2", "target": 99}]
	}`
	got, err := (&JSONProcessor{}).ProcessData([]byte(input))
	require.NoError(t, err)

	want := models.GraphData{
		Nodes: []models.NodeData{{ID: "1", Name: "one"}, {ID: "2", Name: "two"}, {ID: "3"}},
		Links: []models.LinkData{{Source: "1", Target: "2"}, {Source: "2", Target: "99"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ProcessData mismatch (-want +got):\n%s", diff)
	}
}

func TestYAMLProcessor(t *testing.T) {
	input := `
nodes:
  - id: 1
    name: one
  - id: two
links:
  - source: 1
    target: two
`
	got, err := (&YAMLProcessor{}).ProcessData([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, []models.NodeData{{ID: "1", Name: "one"}, {ID: "two"}}, got.Nodes)
	assert.Equal(t, []models.LinkData{{Source: "1", Target: "two"}}, got.Links)
}

func TestCSVProcessor(t *testing.T) {
	input := "from,to,weight\na,b,1\nb,c,2\n,c,3\na,c,1\n"
	got, err := (&CSVProcessor{}).ProcessData([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, []models.NodeData{{ID: "a", Name: "a"}, {ID: "b", Name: "b"}, {ID: "c", Name: "c"}}, got.Nodes)
	assert.Len(t, got.Links, 3)

	_, err = (&CSVProcessor{}).ProcessData([]byte("x,y\n1,2\n"))
	assert.Error(t, err)
}

func TestProcessorErrors(t *testing.T) {
	tests := []struct {
		name   string
		format string
		input  string
	}{
		{"malformed json", "json", `{"nodes": [`},
		{"duplicate ids", "json", `{"nodes": [{"id": 1}, {"id": "1"}]}`},
		{"missing id", "yaml", "nodes:\n  - name: nobody\n"},
		{"non scalar id", "yaml", "nodes:\n  - id: [1, 2]\n"},
		{"empty csv", "csv", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := GetProcessor(tt.format)
			require.NoError(t, err)
			_, err = p.ProcessData([]byte(tt.input))
			assert.Error(t, err)
		})
	}

	_, err := GetProcessor("log")
	assert.Error(t, err)
}

func TestEmptyGraphIsValid(t *testing.T) {
	got, err := (&JSONProcessor{}).ProcessData([]byte(`{}`))
	require.NoError(t, err)
	assert.NotNil(t, got.Nodes)
	assert.Empty(t, got.Nodes)
	assert.Empty(t, got.Links)
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.yml")
	require.NoError(t, os.WriteFile(path, []byte("nodes:\n  - id: 1\n"), 0o644))

	got, err := ProcessFile(path)
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 1)

	_, err = ProcessFile(filepath.Join(dir, "graph.txt"))
	assert.Error(t, err)
	_, err = ProcessFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
