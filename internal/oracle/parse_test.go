package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
)

func TestParseDecision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want crawler.Action
	}{
		{name: "navigate", text: `{"action":"NAVIGATE","url":"https://inkhouse.example/artists"}`, want: crawler.Navigate{URL: "https://inkhouse.example/artists"}},
		{name: "extract", text: `{"action":"EXTRACT"}`, want: crawler.Extract{}},
		{name: "done", text: `  {"action":"DONE"}  `, want: crawler.Done{}},
		{name: "fenced", text: "```json\n{\"action\":\"EXTRACT\"}\n```", want: crawler.Extract{}},
		{name: "bare fence", text: "```\n{\"action\":\"DONE\"}\n```\n", want: crawler.Done{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseDecision(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDecisionRejectsMalformed(t *testing.T) {
	t.Parallel()

	bad := []string{
		``,
		`not json`,
		`{"action":"navigate","url":"https://x.example"}`,
		`{"action":"NAVIGATE"}`,
		`{"action":"JUMP"}`,
		`{"action":"DONE","reason":"nothing here"}`,
		`{"action":"DONE"}{"action":"EXTRACT"}`,
		`["DONE"]`,
	}
	for _, text := range bad {
		_, err := parseDecision(text)
		require.ErrorIs(t, err, ErrMalformedResponse, "input %q", text)
	}
}

func TestParseCandidates(t *testing.T) {
	t.Parallel()

	text := "```json\n" + `[
		{"name":"Jane Doe","styles":["Neo-Traditional"],"email":"jane@inkhouse.example","years_experience":7},
		{"name":"  ","styles":["blackwork"]},
		{"styles":["dotwork"]},
		{"name":"Sam Lee","email":"not-an-email","years_experience":-3,"social_links":"https://instagram.com/sam"}
	]` + "\n```"

	got, dropped, err := parseCandidates(text)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	require.Len(t, got, 2)

	assert.Equal(t, crawler.Candidate{
		Name:            "Jane Doe",
		Styles:          []string{"Neo-Traditional"},
		Email:           "jane@inkhouse.example",
		YearsExperience: 7,
	}, got[0])
	assert.Equal(t, "Sam Lee", got[1].Name)
	assert.Empty(t, got[1].Email)
	assert.Zero(t, got[1].YearsExperience)
	assert.Equal(t, "https://instagram.com/sam", got[1].SocialLinks)
}

func TestParseCandidatesEmpty(t *testing.T) {
	t.Parallel()

	for _, text := range []string{`[]`, `null`} {
		got, dropped, err := parseCandidates(text)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Zero(t, dropped)
	}
}

func TestParseCandidatesRejectsObject(t *testing.T) {
	t.Parallel()

	_, _, err := parseCandidates(`{"name":"Jane"}`)
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestParseCandidatesRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		`[{"name":"Jane Doe","instagram_handle":"@jane","styles":["x"]}]`,
		`[{"name":"Jane Doe"}] [{"name":"Sam Lee"}]`,
	} {
		got, _, err := parseCandidates(text)
		require.ErrorIs(t, err, ErrMalformedResponse, "input %q", text)
		assert.Nil(t, got)
	}
}
