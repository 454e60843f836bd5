// Package ingest applies lineage event documents through a lineage.Recorder.
//
// A document creates one trail and then replays its events in order:
//
//	trail:
//	  name: nightly
//	  execution_context: {run: 42}
//	events:
//	  - op: populated_table
//	    ref: dt1
//	    args: {table_id: 1}
//	  - op: row
//	    ref: r1
//	    args: {table: $dt1, row_identifier: "1"}
//	  - op: column_value
//	    args: {row: $r1, column_id: 11, value: 10}
//
// Any ID argument may name the result of an earlier event as $ref. The
// trail itself is always available as $trail.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is one batch of lineage events for a new trail.
type Document struct {
	Trail  TrailSpec `json:"trail" yaml:"trail"`
	Events []Event   `json:"events" yaml:"events"`
}

// TrailSpec describes the trail the events are recorded under.
type TrailSpec struct {
	Name             string         `json:"name" yaml:"name"`
	ExecutionContext map[string]any `json:"execution_context" yaml:"execution_context"`
}

// Event is one Recorder call.
type Event struct {
	Op   string         `json:"op" yaml:"op"`
	Ref  string         `json:"ref,omitempty" yaml:"ref,omitempty"`
	Args map[string]any `json:"args" yaml:"args"`
}

// Parse decodes a JSON or YAML document. JSON is detected by a leading
// brace. JSON numbers are kept as json.Number until they are decoded into
// event arguments.
func Parse(data []byte) (*Document, error) {
	var doc Document

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		// keep IDs above 2^53 exact
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode ingest document: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode ingest document: %w", err)
		}
	}

	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadFile reads and parses a document from disk.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ingest document: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func (d *Document) validate() error {
	seen := map[string]int{"trail": -1}
	for i, ev := range d.Events {
		if _, ok := handlers[ev.Op]; !ok {
			return &EventError{Index: i, Op: ev.Op, Err: fmt.Errorf("unknown op %q", ev.Op)}
		}
		if ev.Ref == "" {
			continue
		}
		if prev, dup := seen[ev.Ref]; dup {
			return &EventError{Index: i, Op: ev.Op, Err: fmt.Errorf("ref %q already defined by event %d", ev.Ref, prev)}
		}
		seen[ev.Ref] = i
	}
	return nil
}

// EventError reports the event that stopped a batch. Events before Index
// were applied.
type EventError struct {
	Index int
	Op    string
	Err   error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}
