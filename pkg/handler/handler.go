// Package handler implements the media-handler graph: a runtime-wired DAG of
// nodes exchanging stream.StreamData along numbered input/output ports, per
// spec.md §4.1.
//
// The contract (Initialize/Process/OnFlushRequest/Dispatch) has no close Go
// analogue in the retrieved example pack; it follows
// original_source/packager/media/base's implied handler base (its shape is
// visible through chunking_handler.h and encryption_handler.h, both of which
// override InitializeInternal/Process/OnFlushRequest). It is specified here
// as a plain interface, matching the teacher's avoidance of inheritance for
// variant behaviour (StreamIndex/Track/StreamFragment in smoothstreaming.go
// differ only in the fields they carry, never in a shared base class).
package handler

import (
	"context"
	"log/slog"

	"github.com/go-webdl/packager/pkg/status"
	"github.com/go-webdl/packager/pkg/stream"
)

// Handler is the capability set every node in the graph exposes.
type Handler interface {
	// Initialize is called once after all edges are wired. It must not
	// allocate buffers that depend on runtime StreamInfo.
	Initialize() *status.Status

	// Process handles one upstream message. Called once per message, on a
	// single goroutine per input port; a handler fed from multiple input
	// ports by different origins must serialize its own state.
	Process(data *stream.StreamData) *status.Status

	// OnFlushRequest signals end-of-stream on inputPort. The handler must
	// emit any buffered messages for that port, then propagate flush to the
	// output ports it feeds.
	OnFlushRequest(inputPort int) *status.Status

	// AddOutput wires an output port of this handler to the input port of a
	// downstream handler.
	AddOutput(outputPort int, next Handler, nextInputPort int) error
}

// Node provides the common plumbing (output-port table, dispatch-by-stream-
// index, logging) that concrete handlers embed so they only need to
// implement Initialize/Process/OnFlushRequest.
type Node struct {
	Logger  *slog.Logger
	outputs map[int]outputEdge
}

type outputEdge struct {
	next      Handler
	inputPort int
}

// InitNode must be called by every concrete handler's constructor.
func InitNode(logger *slog.Logger) Node {
	if logger == nil {
		logger = slog.Default()
	}
	return Node{Logger: logger, outputs: make(map[int]outputEdge)}
}

// AddOutput implements Handler.AddOutput for embedders.
func (n *Node) AddOutput(outputPort int, next Handler, nextInputPort int) error {
	if n.outputs == nil {
		n.outputs = make(map[int]outputEdge)
	}
	n.outputs[outputPort] = outputEdge{next: next, inputPort: nextInputPort}
	return nil
}

// Dispatch routes data to the output port matching data.StreamIndex,
// rewriting the message's StreamIndex to the downstream handler's expected
// input port. Concrete handlers call this instead of tracking edges
// themselves.
func (n *Node) Dispatch(data *stream.StreamData) *status.Status {
	edge, ok := n.outputs[data.StreamIndex]
	if !ok {
		return status.New(status.Internal, "no output wired for stream index %d", data.StreamIndex)
	}
	forwarded := *data
	forwarded.StreamIndex = edge.inputPort
	if s := edge.next.Process(&forwarded); !status.Ok(s) {
		return s
	}
	return nil
}

// DispatchFlush propagates a flush request to every wired output port.
func (n *Node) DispatchFlush() *status.Status {
	for _, edge := range n.outputs {
		if s := edge.next.OnFlushRequest(edge.inputPort); !status.Ok(s) {
			return s
		}
	}
	return nil
}

// HasOutputs reports whether at least one output port has been wired, used
// by Graph validation ("every output port has at least one consumer").
func (n *Node) HasOutputs() bool {
	return len(n.outputs) > 0
}

// Origin is a source node (typically a demuxer) that drives a graph run on
// its own goroutine and honours context cancellation between samples, per
// spec.md §5.
type Origin interface {
	Handler
	// Run pushes all of this origin's StreamData downstream until
	// end-of-stream, or until ctx is cancelled. It returns status.Cancelled
	// if ctx was cancelled before completion.
	Run(ctx context.Context) *status.Status
}
