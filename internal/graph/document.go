package graph

import (
	"encoding/json"
	"fmt"
)

// Document is the JSON-serializable form of a model.
type Document struct {
	Title       string         `json:"title,omitempty"`
	Nodes       []DocumentNode `json:"nodes"`
	Connections []Connection   `json:"connections,omitempty"`
}

// DocumentNode is a node as written by callers. A zero width or height falls
// back to its default on its own; positions are optional. Node ids are the
// node's index in the document.
type DocumentNode struct {
	Type   NodeType `json:"type"`
	Label  string   `json:"label"`
	X      float64  `json:"x,omitempty"`
	Y      float64  `json:"y,omitempty"`
	Width  float64  `json:"width,omitempty"`
	Height float64  `json:"height,omitempty"`
}

// FromDocument builds a model by replaying AddNode/AddConnection, so node ids
// are the document's node indexes.
func FromDocument(doc *Document) *Model {
	m := New()
	for _, dn := range doc.Nodes {
		w, h := DefaultWidth, DefaultHeight
		if dn.Width > 0 {
			w = dn.Width
		}
		if dn.Height > 0 {
			h = dn.Height
		}
		m.AddNode(dn.Type, dn.Label, At(dn.X, dn.Y), Size(w, h))
	}
	for _, c := range doc.Connections {
		m.AddConnection(c.From, c.To, c.Label)
	}
	return m
}

// ToDocument captures the model's current state.
func (m *Model) ToDocument(title string) *Document {
	doc := &Document{Title: title, Nodes: make([]DocumentNode, 0, len(m.nodes))}
	for _, n := range m.nodes {
		doc.Nodes = append(doc.Nodes, DocumentNode{
			Type: n.Type, Label: n.Label,
			X: n.X, Y: n.Y, Width: n.Width, Height: n.Height,
		})
	}
	doc.Connections = m.Connections()
	return doc
}

// ParseDocument decodes a JSON model document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("graph: decode document: %w", err)
	}
	return &doc, nil
}
