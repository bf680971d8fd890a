package runtime

import (
	"fmt"
	"strings"
)

// NodeKind is the closed set of node types a flow may contain.
type NodeKind string

const (
	KindStart              NodeKind = "start"
	KindEnd                NodeKind = "end"
	KindVariable           NodeKind = "variable"
	KindCondition          NodeKind = "condition"
	KindLoop               NodeKind = "loop"
	KindIteration          NodeKind = "iteration"
	KindParameterExtractor NodeKind = "parameter_extractor"
	KindLLM                NodeKind = "llm"
	KindVectorSearch       NodeKind = "vector_search"
	KindMCPTool            NodeKind = "mcp_tool"
	KindAnswer             NodeKind = "answer"
)

// NodeKinds lists every supported kind in declaration order.
var NodeKinds = []NodeKind{
	KindStart,
	KindEnd,
	KindVariable,
	KindCondition,
	KindLoop,
	KindIteration,
	KindParameterExtractor,
	KindLLM,
	KindVectorSearch,
	KindMCPTool,
	KindAnswer,
}

// Valid reports whether k is one of the supported kinds.
func (k NodeKind) Valid() bool {
	for _, known := range NodeKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Edge labels understood by the router.
const (
	EdgeTrue  = "true"
	EdgeFalse = "false"
	EdgeBody  = "body"
	EdgeExit  = "exit"
)

// FlowDefinition is an immutable, already-parsed flow graph.
type FlowDefinition struct {
	ID    string `json:"id,omitempty" yaml:"id,omitempty"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

type Node struct {
	ID       string         `json:"id" yaml:"id"`
	Kind     NodeKind       `json:"type" yaml:"type"`
	Data     map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
	Position Position       `json:"position" yaml:"position"`
}

type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

type Edge struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Source    string `json:"source" yaml:"source"`
	Target    string `json:"target" yaml:"target"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Graph is a validated, indexed view over a FlowDefinition.
// It is read-only and may be shared between concurrent executions.
type Graph struct {
	def      *FlowDefinition
	nodes    map[string]*Node
	outgoing map[string][]Edge
	start    *Node
}

// NewGraph validates def and indexes its nodes and edges.
func NewGraph(def *FlowDefinition) (*Graph, error) {
	if def == nil {
		return nil, NewConfigurationError("nodes", "flow definition is nil")
	}

	g := &Graph{
		def:      def,
		nodes:    make(map[string]*Node, len(def.Nodes)),
		outgoing: make(map[string][]Edge),
	}

	for i := range def.Nodes {
		n := &def.Nodes[i]
		if n.ID == "" {
			return nil, NewConfigurationError("id", fmt.Sprintf("node #%d has no id", i))
		}
		if strings.ContainsAny(n.ID, ".#") {
			err := NewConfigurationError("id", fmt.Sprintf("node id %q must not contain '.' or '#'", n.ID))
			err.NodeID = n.ID
			return nil, err
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, NewConfigurationError("id", fmt.Sprintf("duplicate node id %q", n.ID))
		}
		if !n.Kind.Valid() {
			err := NewConfigurationError("type", fmt.Sprintf("node %q has unknown type %q", n.ID, n.Kind))
			err.NodeID = n.ID
			return nil, err
		}
		g.nodes[n.ID] = n

		if n.Kind == KindStart {
			if g.start != nil {
				return nil, NewConfigurationError("type", fmt.Sprintf("flow has more than one start node (%q, %q)", g.start.ID, n.ID))
			}
			g.start = n
		}
	}

	if g.start == nil {
		return nil, NewConfigurationError("type", "flow has no start node")
	}

	for _, e := range def.Edges {
		if _, ok := g.nodes[e.Source]; !ok {
			return nil, NewConfigurationError("source", fmt.Sprintf("edge %q references unknown source %q", e.ID, e.Source))
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return nil, NewConfigurationError("target", fmt.Sprintf("edge %q references unknown target %q", e.ID, e.Target))
		}
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
	}

	return g, nil
}

func (g *Graph) Definition() *FlowDefinition {
	return g.def
}

func (g *Graph) Start() *Node {
	return g.start
}

func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Outgoing returns the edges leaving id in definition order.
func (g *Graph) Outgoing(id string) []Edge {
	return g.outgoing[id]
}

// Reachable returns the ids of every node reachable from id, id included.
func (g *Graph) Reachable(id string) []string {
	seen := map[string]bool{id: true}
	order := []string{id}
	for i := 0; i < len(order); i++ {
		for _, e := range g.outgoing[order[i]] {
			if !seen[e.Target] {
				seen[e.Target] = true
				order = append(order, e.Target)
			}
		}
	}
	return order
}
