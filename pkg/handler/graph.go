package handler

import (
	"context"

	"github.com/go-webdl/packager/pkg/status"
)

// Edge describes one wired connection for graph validation purposes.
type Edge struct {
	From          Handler
	FromOutput    int
	To            Handler
	ToInput       int
}

// Graph wires a set of handlers together and checks two construction rules
// at Initialize time: cycles are forbidden, and every node whose
// HasOutputs reports true has at least one outgoing edge recorded by
// Connect (nodes without outputs, or without HasOutputs, are sinks). It does not check that every input is connected, and neither
// Graph nor the handlers in this module reject unrecognized input indices.
type Graph struct {
	origins []Origin
	nodes   []Handler
	edges   []Edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddOrigin registers a source handler that will drive its own goroutine
// when the graph runs.
func (g *Graph) AddOrigin(o Origin) {
	g.origins = append(g.origins, o)
	g.nodes = append(g.nodes, o)
}

// AddNode registers a non-origin handler so the graph can validate it.
func (g *Graph) AddNode(h Handler) {
	g.nodes = append(g.nodes, h)
}

// Connect wires from's output port to to's input port and records the edge
// for cycle/coverage validation. It calls from.AddOutput itself.
func (g *Graph) Connect(from Handler, fromOutput int, to Handler, toInput int) error {
	if err := from.AddOutput(fromOutput, to, toInput); err != nil {
		return err
	}
	g.edges = append(g.edges, Edge{From: from, FromOutput: fromOutput, To: to, ToInput: toInput})
	return nil
}

// Initialize validates the wired graph (acyclic, every output connected)
// then calls Initialize on every node, origins first so downstream state
// set up by an origin's Initialize is visible before its consumers run.
func (g *Graph) Initialize() *status.Status {
	if err := g.checkAcyclic(); err != nil {
		return status.Wrap(status.Internal, err, "handler graph validation failed")
	}
	if err := g.checkOutputsConnected(); err != nil {
		return status.Wrap(status.Internal, err, "handler graph validation failed")
	}
	isOrigin := make(map[Handler]bool, len(g.origins))
	for _, o := range g.origins {
		isOrigin[o] = true
		if s := o.Initialize(); !status.Ok(s) {
			return s
		}
	}
	for _, n := range g.nodes {
		if isOrigin[n] {
			continue
		}
		if s := n.Initialize(); !status.Ok(s) {
			return s
		}
	}
	return nil
}

func (g *Graph) checkAcyclic() error {
	adjacency := make(map[Handler][]Handler)
	for _, e := range g.edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[Handler]int)

	var visit func(h Handler) error
	visit = func(h Handler) error {
		color[h] = gray
		for _, next := range adjacency[h] {
			switch color[next] {
			case gray:
				return status.ErrCyclicGraph
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[h] = black
		return nil
	}

	for _, n := range g.nodes {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) checkOutputsConnected() error {
	hasOutputEdge := make(map[Handler]bool)
	isSink := make(map[Handler]bool)
	for _, e := range g.edges {
		hasOutputEdge[e.From] = true
	}
	for _, n := range g.nodes {
		if hn, ok := n.(interface{ HasOutputs() bool }); ok {
			if hn.HasOutputs() {
				continue
			}
		}
		isSink[n] = true
	}
	for _, n := range g.nodes {
		if isSink[n] {
			continue // sinks (muxers) legitimately have no outputs.
		}
		if !hasOutputEdge[n] {
			return status.ErrUnconnectedPort
		}
	}
	return nil
}

// Run starts one goroutine per origin and waits for all of them to
// complete, matching the "each source runs on its own thread" scheduling
// model of spec.md §5. If any origin returns a non-OK status, ctx's derived
// cancellation is triggered so sibling origins observe cancellation on
// their next sample boundary, and Run returns the first observed error.
func (g *Graph) Run(ctx context.Context) *status.Status {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		s *status.Status
	}
	results := make(chan result, len(g.origins))

	for _, o := range g.origins {
		o := o
		go func() {
			results <- result{s: o.Run(runCtx)}
		}()
	}

	var first *status.Status
	for range g.origins {
		r := <-results
		if !status.Ok(r.s) && first == nil && !status.IsEndOfStream(r.s) {
			first = r.s
			cancel()
		}
	}
	return first
}
