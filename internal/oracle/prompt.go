package oracle

import (
	"strings"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
)

const decisionSystemPrompt = `You are browsing the website of a business, looking for the tattoo artists who work there.

First decide whether this is a tattoo studio or shop. If it clearly is not, answer DONE.

If the current page names artists, lists their styles or shows their contact details, answer EXTRACT. Prefer EXTRACT over NAVIGATE whenever artist data is present.

Otherwise pick one link worth following and answer NAVIGATE with its URL. Pages such as Artists, Our Team, Meet the Crew, Gallery or About are good candidates. Only follow links on the same domain as the current page. Never pick social media or other third-party sites. Never pick a URL that was already visited.

Answer DONE when three or more pages have been visited without finding artist profiles, when the page has no promising links, or when the site has no artist information at all.

Reply with a single JSON object and nothing else.`

const extractionSystemPrompt = `You extract tattoo artist records from the HTML of a studio website. Reply with a JSON array and nothing else.`

func decisionUserPrompt(input crawler.DecisionInput) string {
	var b strings.Builder
	b.WriteString("URL: ")
	b.WriteString(input.URL)
	b.WriteString("\n\nHTML:\n")
	b.WriteString(input.HTML)
	b.WriteString("\n\nVisited URLs: ")
	b.WriteString(strings.Join(input.Visited, ", "))
	b.WriteString(`

Respond with exactly one of:
{"action": "NAVIGATE", "url": "https://same-domain.example/path"}
{"action": "EXTRACT"}
{"action": "DONE"}`)
	return b.String()
}

func extractionUserPrompt(input crawler.ExtractionInput) string {
	known := "None"
	if len(input.KnownNames) > 0 {
		known = strings.Join(input.KnownNames, ", ")
	}

	var b strings.Builder
	b.WriteString("URL: ")
	b.WriteString(input.URL)
	b.WriteString("\n\nHTML:\n")
	b.WriteString(input.HTML)
	b.WriteString("\n\nArtists already recorded for this location: ")
	b.WriteString(known)
	b.WriteString(`

Return every artist on the page that is not already recorded, as objects with these fields:
- name (string)
- styles (array of strings)
- email (string, optional)
- phone (string, optional)
- social_links (string, comma separated, optional)
- years_experience (number, optional)

Skip anyone whose name appears in the recorded list.

Only give an artist the styles that artist actually works in. Do not copy the styles listed for the whole studio onto every artist. If you cannot tell which styles belong to whom, leave styles empty. No styles is better than wrong styles.

Respond with a JSON array of artist objects. Use [] when there are none.`)
	return b.String()
}
