package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ReplayStream consumes a stream of JSON-encoded commands from r and
// applies them strictly in arrival order, one at a time to completion.
// This is the pull-based ingress for command streams: the transport
// collaborator handles asynchronous delivery, the executor just reads
// the next command when it is ready for one.
//
// A command that fails is reported in its result and processing
// continues; one bad edit must not halt the session. A stream that is
// cut off mid-delivery (truncated JSON, closed reader) returns the
// results gathered so far alongside the decode error; the tree is left
// in the state of the last fully-applied command, which is always
// consistent.
func (e *Executor) ReplayStream(r io.Reader) ([]CommandResult, error) {
	dec := json.NewDecoder(r)
	var results []CommandResult
	for {
		var cmd Command
		err := dec.Decode(&cmd)
		if errors.Is(err, io.EOF) {
			return results, nil
		}
		if err != nil {
			return results, fmt.Errorf("command stream aborted after %d command(s): %w", len(results), err)
		}
		results = append(results, e.Apply(cmd))
	}
}
