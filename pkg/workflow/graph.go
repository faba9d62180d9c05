package workflow

import (
	"context"
	"fmt"
	"strings"
)

// Node is one state in a workflow graph.
type Node struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Color     string `json:"color,omitempty"`
	IsStart   bool   `json:"is_start"`
	IsEnd     bool   `json:"is_end"`
	IsDefault bool   `json:"is_default"`
}

// Edge is one transition in a workflow graph.
type Edge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Label  string `json:"label"`
	Code   string `json:"code"`
	Active bool   `json:"active"`
}

// Graph is a read-only view of a workflow for diagramming.
type Graph struct {
	Workflow string `json:"workflow"`
	Nodes    []Node `json:"nodes"`
	Edges    []Edge `json:"edges"`
}

// Visualize derives the graph of the workflow with code. Nodes follow the
// state sequence and edges the transition sequence.
func (s *Service) Visualize(ctx context.Context, code string) (*Graph, error) {
	wf, err := s.GetWorkflow(ctx, code)
	if err != nil {
		return nil, err
	}

	transitions, err := s.ListTransitions(ctx, wf.ID, "", false)
	if err != nil {
		return nil, fmt.Errorf("Visualize: failed to list transitions: %w", err)
	}

	defaultState := wf.ResolveDefaultState()
	states := wf.SortedStates()

	g := &Graph{
		Workflow: wf.Code,
		Nodes:    make([]Node, 0, len(states)),
		Edges:    make([]Edge, 0, len(transitions)),
	}

	for _, st := range states {
		g.Nodes = append(g.Nodes, Node{
			ID:        st.Code,
			Label:     st.Name,
			Color:     st.Color,
			IsStart:   st.IsStart,
			IsEnd:     st.IsEnd,
			IsDefault: st.Code == defaultState,
		})
	}

	for _, t := range transitions {
		label := t.Name
		if t.UI.ButtonName != "" {
			label = t.UI.ButtonName
		}

		g.Edges = append(g.Edges, Edge{
			From:   t.FromState,
			To:     t.ToState,
			Label:  label,
			Code:   t.Code,
			Active: t.Active,
		})
	}

	return g, nil
}

// Mermaid renders the graph as a stateDiagram-v2 document. The default
// state is entered from [*] and end states exit to [*]; inactive edges are
// suffixed with "(inactive)".
func (g *Graph) Mermaid() string {
	var b strings.Builder

	b.WriteString("stateDiagram-v2\n")

	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "    %s: %s\n", mermaidID(n.ID), mermaidText(n.Label))
	}

	for _, n := range g.Nodes {
		if n.IsDefault {
			fmt.Fprintf(&b, "    [*] --> %s\n", mermaidID(n.ID))
		}
	}

	for _, e := range g.Edges {
		label := mermaidText(e.Label)
		if !e.Active {
			label += " (inactive)"
		}

		fmt.Fprintf(&b, "    %s --> %s: %s\n", mermaidID(e.From), mermaidID(e.To), label)
	}

	for _, n := range g.Nodes {
		if n.IsEnd {
			fmt.Fprintf(&b, "    %s --> [*]\n", mermaidID(n.ID))
		}
	}

	return b.String()
}

func mermaidID(code string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, code)
}

func mermaidText(s string) string {
	return strings.NewReplacer("\n", " ", ":", " ").Replace(s)
}
