// Package ingest reads input graphs in the {nodes, links} format from JSON,
// YAML or CSV edge lists.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/TFMV/forcegraph/models"
	"gopkg.in/yaml.v3"
)

// DataProcessor turns raw bytes into an input graph.
type DataProcessor interface {
	// ProcessData parses data into a graph snapshot
	ProcessData(data []byte) (models.GraphData, error)

	// GetName returns the name of the processor
	GetName() string
}

// JSONProcessor handles JSON data
type JSONProcessor struct{}

// GetName returns the name of the processor
func (p *JSONProcessor) GetName() string {
	return "JSON Processor"
}

// ProcessData parses {"nodes": [...], "links": [...]}. Ids may be strings
// or numbers. "edges" is accepted as an alias for "links".
func (p *JSONProcessor) ProcessData(data []byte) (models.GraphData, error) {
	var raw struct {
		models.GraphData
		Edges []models.LinkData `json:"edges"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return models.GraphData{}, fmt.Errorf("error parsing JSON: %w", err)
	}
	out := raw.GraphData
	out.Links = append(out.Links, raw.Edges...)
	return normalize(out)
}

// YAMLProcessor handles YAML data
type YAMLProcessor struct{}

// GetName returns the name of the processor
func (p *YAMLProcessor) GetName() string {
	return "YAML Processor"
}

// ProcessData parses the YAML form of the input graph.
func (p *YAMLProcessor) ProcessData(data []byte) (models.GraphData, error) {
	var out models.GraphData
	if err := yaml.Unmarshal(data, &out); err != nil {
		return models.GraphData{}, fmt.Errorf("error parsing YAML: %w", err)
	}
	return normalize(out)
}

// CSVProcessor handles edge-list CSV data. Nodes are created for every id
// seen in the source and target columns.
type CSVProcessor struct{}

// GetName returns the name of the processor
func (p *CSVProcessor) GetName() string {
	return "CSV Processor"
}

// ProcessData reads a header row naming source and target columns
// (source/from/src, target/to/dst), then one link per row.
func (p *CSVProcessor) ProcessData(data []byte) (models.GraphData, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return models.GraphData{}, fmt.Errorf("error reading CSV header: %w", err)
	}

	sourceIdx, targetIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "source", "from", "src":
			sourceIdx = i
		case "target", "to", "dst":
			targetIdx = i
		}
	}
	if sourceIdx == -1 || targetIdx == -1 {
		return models.GraphData{}, errors.New("CSV must contain source and target columns")
	}

	var out models.GraphData
	seen := make(map[string]bool)
	addNode := func(id string) {
		if !seen[id] {
			seen[id] = true
			out.Nodes = append(out.Nodes, models.NodeData{ID: models.FlexID(id), Name: id})
		}
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.GraphData{}, fmt.Errorf("error reading CSV row: %w", err)
		}
		if sourceIdx >= len(row) || targetIdx >= len(row) {
			continue
		}
		source := strings.TrimSpace(row[sourceIdx])
		target := strings.TrimSpace(row[targetIdx])
		if source == "" || target == "" {
			continue
		}
		addNode(source)
		addNode(target)
		out.Links = append(out.Links, models.LinkData{
			Source: models.FlexID(source),
			Target: models.FlexID(target),
		})
	}
	return normalize(out)
}

// normalize rejects duplicate or empty node ids. Dangling links are left
// in place; the graph model drops and logs them when it resolves.
func normalize(data models.GraphData) (models.GraphData, error) {
	seen := make(map[models.FlexID]bool, len(data.Nodes))
	for i, n := range data.Nodes {
		if n.ID == "" {
			return models.GraphData{}, fmt.Errorf("node %d has no id", i)
		}
		if seen[n.ID] {
			return models.GraphData{}, fmt.Errorf("%w: %s", models.ErrDuplicateNode, n.ID)
		}
		seen[n.ID] = true
	}
	if data.Nodes == nil {
		data.Nodes = []models.NodeData{}
	}
	if data.Links == nil {
		data.Links = []models.LinkData{}
	}
	return data, nil
}

// GetProcessor returns the appropriate processor for the given format
func GetProcessor(format string) (DataProcessor, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONProcessor{}, nil
	case "yaml", "yml":
		return &YAMLProcessor{}, nil
	case "csv":
		return &CSVProcessor{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// ProcessFile picks a processor from the file extension and parses path.
func ProcessFile(path string) (models.GraphData, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	processor, err := GetProcessor(ext)
	if err != nil {
		return models.GraphData{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.GraphData{}, fmt.Errorf("error reading %s: %w", path, err)
	}
	return processor.ProcessData(data)
}
