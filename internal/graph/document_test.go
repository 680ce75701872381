package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"title": "sum",
		"nodes": [
			{"type": "start", "label": "Start"},
			{"type": "process", "label": "Add", "x": 10, "y": 20, "width": 90, "height": 30}
		],
		"connections": [{"from": 0, "to": 1, "label": "go"}]
	}`))
	require.NoError(t, err)

	m := FromDocument(doc)
	nodes := m.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, 150.0, nodes[0].Width, "missing size falls back to defaults")
	assert.Equal(t, Node{ID: 1, Type: NodeTypeProcess, Label: "Add", X: 10, Y: 20, Width: 90, Height: 30}, nodes[1])
	assert.Equal(t, []Connection{{From: 0, To: 1, Label: "go"}}, m.Connections())
}

func TestParseDocumentInvalid(t *testing.T) {
	_, err := ParseDocument([]byte(`{"nodes": 3}`))
	assert.Error(t, err)
}

func TestToDocumentRoundTrip(t *testing.T) {
	m := New()
	m.AddNode(NodeTypeStart, "Start")
	m.AddNode(NodeTypeDecision, "ok?")
	m.AddConnection(0, 1, "")
	m.AutoLayoutDefault()

	back := FromDocument(m.ToDocument("t"))
	assert.Equal(t, m.Nodes(), back.Nodes())
	assert.Equal(t, m.Connections(), back.Connections())
}

func TestFromDocumentPartialSize(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"nodes": [
		{"type": "process", "label": "wide", "width": 240},
		{"type": "process", "label": "tall", "height": 90}
	]}`))
	require.NoError(t, err)

	nodes := FromDocument(doc).Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, 240.0, nodes[0].Width)
	assert.Equal(t, DefaultHeight, nodes[0].Height)
	assert.Equal(t, DefaultWidth, nodes[1].Width)
	assert.Equal(t, 90.0, nodes[1].Height)
}
