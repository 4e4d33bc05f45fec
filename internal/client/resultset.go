package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// statsResponse is the provider's response envelope. Every endpoint returns
// one or more named tabular result sets, each with a shared header row and
// positionally-indexed data rows.
type statsResponse struct {
	ResultSets []resultSet `json:"resultSets"`
}

type resultSet struct {
	Name    string   `json:"name"`
	Headers []string `json:"headers"`
	RowSet  [][]any  `json:"rowSet"`
}

func parseStatsResponse(body []byte) (*statsResponse, error) {
	var resp statsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats response: %w", err)
	}
	return &resp, nil
}

// byName returns the result set with the given name.
func (r *statsResponse) byName(name string) (resultSet, bool) {
	for _, s := range r.ResultSets {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return resultSet{}, false
}

// first returns the first result set in the envelope.
func (r *statsResponse) first() (resultSet, bool) {
	if len(r.ResultSets) == 0 {
		return resultSet{}, false
	}
	return r.ResultSets[0], true
}

// rows materializes the set into header-addressable rows.
func (s resultSet) rows() []row {
	index := make(map[string]int, len(s.Headers))
	for i, h := range s.Headers {
		index[h] = i
	}

	out := make([]row, 0, len(s.RowSet))
	for _, values := range s.RowSet {
		out = append(out, row{index: index, values: values})
	}
	return out
}

// row is a single result-set row addressable by column name.
type row struct {
	index  map[string]int
	values []any
}

// lookup returns the first non-null value among the given column aliases.
// The provider renames columns between endpoint revisions, so callers pass
// every known alias in preference order.
func (r row) lookup(aliases ...string) (any, bool) {
	for _, alias := range aliases {
		i, ok := r.index[alias]
		if !ok || i >= len(r.values) {
			continue
		}
		if r.values[i] == nil {
			continue
		}
		return r.values[i], true
	}
	return nil, false
}

func (r row) intField(aliases ...string) (int, bool) {
	v, ok := r.lookup(aliases...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func (r row) floatField(aliases ...string) (float64, bool) {
	v, ok := r.lookup(aliases...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func (r row) stringField(aliases ...string) (string, bool) {
	v, ok := r.lookup(aliases...)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}
