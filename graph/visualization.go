package graph

import (
	"fmt"
	"strings"
)

// Exporter renders a compiled graph in different formats
type Exporter struct {
	structure *GraphStructure
}

// NewExporter creates a new graph exporter for the given graph
func NewExporter(graph *CompiledGraph) *Exporter {
	return &Exporter{structure: graph.Structure()}
}

// MermaidOptions defines configuration for Mermaid diagram generation
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string
}

// mermaidID maps the pseudo-nodes to identifiers Mermaid accepts.
func mermaidID(name string) string {
	switch name {
	case START:
		return "START"
	case END:
		return "END"
	}
	return name
}

// DrawMermaid generates a Mermaid diagram representation of the graph
func (ge *Exporter) DrawMermaid() string {
	return ge.DrawMermaidWithOptions(MermaidOptions{
		Direction: "TD",
	})
}

// DrawMermaidWithOptions generates a Mermaid diagram with custom options
func (ge *Exporter) DrawMermaidWithOptions(opts MermaidOptions) string {
	var sb strings.Builder

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}
	fmt.Fprintf(&sb, "flowchart %s\n", direction)

	sb.WriteString("    START([\"START\"])\n")
	sb.WriteString("    style START fill:#90EE90\n")

	for _, n := range ge.structure.Nodes {
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", n.Name, n.Name)
	}

	if ge.structure.references(END) {
		sb.WriteString("    END([\"END\"])\n")
		sb.WriteString("    style END fill:#FFB6C1\n")
	}

	for _, e := range ge.structure.Edges {
		from, to := mermaidID(e.From), mermaidID(e.To)
		switch {
		case e.Label != "":
			fmt.Fprintf(&sb, "    %s -.->|%s| %s\n", from, e.Label, to)
		case e.Conditional:
			fmt.Fprintf(&sb, "    %s -.-> %s\n", from, to)
		default:
			fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
		}
	}

	return sb.String()
}

// DrawDOT generates a DOT (Graphviz) representation of the graph
func (ge *Exporter) DrawDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph G {\n")
	sb.WriteString("    rankdir=TD;\n")
	sb.WriteString("    node [shape=box];\n")
	sb.WriteString("    START [label=\"START\", shape=ellipse, style=filled, fillcolor=lightgreen];\n")

	if ge.structure.references(END) {
		sb.WriteString("    END [label=\"END\", shape=ellipse, style=filled, fillcolor=lightpink];\n")
	}

	for _, e := range ge.structure.Edges {
		from, to := mermaidID(e.From), mermaidID(e.To)
		switch {
		case e.Label != "":
			fmt.Fprintf(&sb, "    %s -> %s [style=dashed, label=\"%s\"];\n", from, to, e.Label)
		case e.Conditional:
			fmt.Fprintf(&sb, "    %s -> %s [style=dashed];\n", from, to)
		default:
			fmt.Fprintf(&sb, "    %s -> %s;\n", from, to)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// DrawASCII generates an ASCII tree representation of the graph
func (ge *Exporter) DrawASCII() string {
	var sb strings.Builder
	visited := make(map[string]bool)

	sb.WriteString("Graph Execution Flow:\n")
	sb.WriteString("└── START\n")

	children := ge.structure.outgoing(START)
	for i, e := range children {
		ge.drawASCIINode(e, "    ", i == len(children)-1, visited, &sb)
	}

	return sb.String()
}

// drawASCIINode recursively draws the target of edge
func (ge *Exporter) drawASCIINode(edge EdgeInfo, prefix string, isLast bool, visited map[string]bool, sb *strings.Builder) {
	connector := "├──"
	nextPrefix := prefix + "│   "
	if isLast {
		connector = "└──"
		nextPrefix = prefix + "    "
	}

	name := mermaidID(edge.To)
	marker := ""
	if edge.Conditional {
		marker = " (?)"
	}

	if visited[edge.To] {
		fmt.Fprintf(sb, "%s%s %s%s (cycle)\n", prefix, connector, name, marker)
		return
	}
	fmt.Fprintf(sb, "%s%s %s%s\n", prefix, connector, name, marker)

	if edge.To == END {
		return
	}
	visited[edge.To] = true

	children := ge.structure.outgoing(edge.To)
	for i, e := range children {
		ge.drawASCIINode(e, nextPrefix, i == len(children)-1, visited, sb)
	}
}
