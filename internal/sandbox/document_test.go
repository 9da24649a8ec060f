package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocumentInjectsBridgeFirst(t *testing.T) {
	doc, err := ParseDocument([]byte(`<html><head><script>var first = 1;</script></head>
		<body><script>OPENLDR_BRIDGE_INJECT
		var second = 2;</script></body></html>`))
	require.NoError(t, err)

	assert.True(t, doc.HasBridgeFirst())
	assert.NotContains(t, doc.Render(), BridgeMarker)

	scripts := doc.Scripts()
	require.Len(t, scripts, 2)
	assert.Contains(t, scripts[0].Source, "first")
	assert.Contains(t, scripts[1].Source, "second")
	assert.NotContains(t, scripts[0].Source, "__receive")
}

func TestParseDocumentWithoutHead(t *testing.T) {
	// The HTML parser synthesizes head
	doc, err := ParseDocument([]byte(`<div id="app"></div>`))
	require.NoError(t, err)
	assert.True(t, doc.HasBridgeFirst())
	assert.Len(t, doc.Query("#app"), 1)
}

func TestScriptsSkipsNonJavaScript(t *testing.T) {
	doc, err := ParseDocument([]byte(`<html><head></head><body>
		<script type="application/json">{"a":1}</script>
		<script type="module">var m = 1;</script>
		<script src="x.js"></script>
		</body></html>`))
	require.NoError(t, err)

	scripts := doc.Scripts()
	require.Len(t, scripts, 1)
	assert.Contains(t, scripts[0].Source, "var m")
}
