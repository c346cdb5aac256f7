package glue

import (
	"bufio"
	"encoding/json"
	"io"
)

// GraphEvent is one line of the JSON-lines side file cmd/ldapvi-graph
// reads: a single dispatched operation, named the way diff.Handler's
// methods name their DN arguments. OldDN is empty for an add; NewDN is
// empty for a delete.
type GraphEvent struct {
	Kind  string `json:"kind"` // "add", "change", "rename", "delete"
	OldDN string `json:"old_dn,omitempty"`
	NewDN string `json:"new_dn,omitempty"`
}

// WriteGraphEvent appends one JSON-encoded event line to w.
func WriteGraphEvent(w io.Writer, ev GraphEvent) error {
	enc := json.NewEncoder(w)
	return enc.Encode(ev)
}

// ReadGraphEvents decodes a JSON-lines stream of GraphEvents, the
// inverse of WriteGraphEvent, used by cmd/ldapvi-graph.
func ReadGraphEvents(r io.Reader) ([]GraphEvent, error) {
	var events []GraphEvent
	dec := json.NewDecoder(bufio.NewReader(r))
	for dec.More() {
		var ev GraphEvent
		if err := dec.Decode(&ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
