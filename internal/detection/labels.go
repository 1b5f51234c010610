package detection

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LabelTable maps model class indices to human-readable names. It is read-only after load.
type LabelTable struct {
	labels map[int]string
}

// NewLabelTable builds a table from an index-to-name map.
func NewLabelTable(labels map[int]string) *LabelTable {
	table := &LabelTable{labels: make(map[int]string, len(labels))}
	for k, v := range labels {
		table.labels[k] = v
	}
	return table
}

// LoadLabels reads a label file. Accepted formats:
//   - JSON object with stringified integer keys: {"0": "person", "1": "bicycle"}
//   - JSON array of names, indexed by position
//   - plain text, one name per line
func LoadLabels(path string) (*LabelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels file %s: %w", path, err)
	}

	table, err := ParseLabels(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse labels file %s: %w", path, err)
	}
	return table, nil
}

// ParseLabels parses label data in any of the formats accepted by LoadLabels.
func ParseLabels(data []byte) (*LabelTable, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return NewLabelTable(nil), nil
	}

	switch trimmed[0] {
	case '{':
		var raw map[string]string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		labels := make(map[int]string, len(raw))
		for key, name := range raw {
			idx, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return nil, fmt.Errorf("label key %q is not an integer", key)
			}
			labels[idx] = name
		}
		return &LabelTable{labels: labels}, nil

	case '[':
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return nil, err
		}
		return fromList(names), nil
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return fromList(names), nil
}

func fromList(names []string) *LabelTable {
	labels := make(map[int]string, len(names))
	for i, name := range names {
		if name == "" {
			continue
		}
		labels[i] = name
	}
	return &LabelTable{labels: labels}
}

// Label returns the name for a class index, or "Class <index>" when the table has no entry.
func (t *LabelTable) Label(classIndex int) string {
	if t != nil {
		if label, ok := t.labels[classIndex]; ok && label != "" {
			return label
		}
	}
	return fmt.Sprintf("Class %d", classIndex)
}

// Len returns the number of known labels.
func (t *LabelTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.labels)
}
