package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html>
<head><title>Ink House</title><script>var tracking = 1;</script><style>body{color:red}</style></head>
<body>
  <nav><a href="/artists" onclick="steal()">Artists</a></nav>
  <h1 class="hero">Ink House Tattoo</h1>
  <table><tr><td><p>Jane Doe - neo traditional</p></td></tr></table>
  <img src="/jane.jpg" alt="Jane" onerror="x()">
  <script>alert(1)</script>
  <form><input name="q"></form>
</body>
</html>`

func TestPreprocessKeepsAllowedTags(t *testing.T) {
	t.Parallel()

	cleaned, err := Preprocess([]byte(samplePage))
	require.NoError(t, err)

	require.Contains(t, cleaned, `<a href="/artists"`)
	require.Contains(t, cleaned, "<h1>Ink House Tattoo</h1>")
	require.Contains(t, cleaned, "<p>Jane Doe - neo traditional</p>")
	require.Contains(t, cleaned, `src="/jane.jpg"`)

	for _, banned := range []string{"<script", "alert(1)", "tracking", "<style", "onclick", "onerror", "<table", "<nav", "<form", "<input", "class=", "<title"} {
		require.NotContains(t, cleaned, banned)
	}
}

func TestPreprocessFragment(t *testing.T) {
	t.Parallel()

	cleaned, err := Preprocess([]byte(`<div><b>bold</b> text</div>`))
	require.NoError(t, err)
	require.Equal(t, "<div>bold text</div>", cleaned)
}

func TestToMarkdown(t *testing.T) {
	t.Parallel()

	out, err := ToMarkdown(`<h1>Artists</h1><p><a href="/jane">Jane Doe</a></p>`, "inkhouse.example")
	require.NoError(t, err)
	require.Contains(t, out, "Artists")
	require.Contains(t, out, "[Jane Doe](")
	require.Contains(t, out, "inkhouse.example/jane)")
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc", Truncate("abcdef", 3))
	require.Equal(t, "abcdef", Truncate("abcdef", 0))
	require.Equal(t, "abcdef", Truncate("abcdef", 10))

	s := "aé" // 'é' is two bytes
	require.Equal(t, "a", Truncate(s, 2))
	require.True(t, strings.HasPrefix(s, Truncate(s, 2)))
}
