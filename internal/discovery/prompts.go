package discovery

import (
	"fmt"
	"strings"
	"time"
)

const (
	relevanceTextBudget  = 4000
	extractionTextBudget = 11000
)

// extractionContract is the shape every extraction answer must take. The
// keys are part of the persistence contract, so they are spelled out rather
// than described.
const extractionContract = `{"title": "", "organizer": "", "deadline": "", "grantOrPrize": "", "type": "", "description": "", "eligibility": [], "website": "", "scope": "", "instagramCaption": ""}`

func relevancePrompt(pageText string, rejected []string) string {
	var b strings.Builder
	b.WriteString("You screen web pages for an opportunity board serving artists, filmmakers and performers in India.\n\n")
	b.WriteString("Answer YES only if the page text below describes a specific grant, residency, festival or lab that is currently open for applications and accepts applicants from India.\n")
	b.WriteString("Answer NO for listicles, news coverage, closed or expired calls, directories, and anything an applicant based in India cannot enter.\n")
	if len(rejected) > 0 {
		b.WriteString("\nThese were already reviewed and rejected. Answer NO if the page is about any of them:\n")
		for _, t := range rejected {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	fmt.Fprintf(&b, "\nPage text:\n%s\n", clampText(pageText, relevanceTextBudget))
	b.WriteString("\nAnswer with a single word: YES or NO.")
	return b.String()
}

func extractionPrompt(pageText, pageURL string, today time.Time) string {
	var b strings.Builder
	b.WriteString("You are cataloguing opportunities for artists, filmmakers and performers based in India.\n\n")
	fmt.Fprintf(&b, "Today's date is %s.\n\n", today.Format("2006-01-02"))
	b.WriteString("Read the page text below and extract the single opportunity it describes.\n\n")
	writeExtractionRules(&b)
	fmt.Fprintf(&b, "\nPage URL: %s\n", pageURL)
	fmt.Fprintf(&b, "\nPage text:\n%s\n", clampText(pageText, extractionTextBudget))
	b.WriteString("\nRespond ONLY with the JSON object.")
	return b.String()
}

func parsePrompt(rawText, sourceURL string, today time.Time) string {
	var b strings.Builder
	b.WriteString("You are cataloguing opportunities for artists, filmmakers and performers based in India.\n\n")
	fmt.Fprintf(&b, "Today's date is %s.\n\n", today.Format("2006-01-02"))
	b.WriteString("The text below was pasted from an announcement. Extract the opportunity it describes. If a detail is missing you may search the web for the official page.\n\n")
	writeExtractionRules(&b)
	if sourceURL != "" {
		fmt.Fprintf(&b, "\nIf the text does not name a website, use %s.\n", sourceURL)
	}
	fmt.Fprintf(&b, "\nText:\n%s\n", clampText(rawText, extractionTextBudget))
	b.WriteString("\nRespond ONLY with the JSON object.")
	return b.String()
}

func writeExtractionRules(b *strings.Builder) {
	b.WriteString("Rules:\n")
	b.WriteString(`- If there is no single concrete opportunity, or applicants from India are not eligible, respond with {"skip": true}.` + "\n")
	b.WriteString("- \"deadline\" must be YYYY-MM-DD; use \"\" when no date is given.\n")
	b.WriteString("- \"type\" must be one of: grant, residency, festival, lab.\n")
	b.WriteString("- \"scope\" is \"national\" when only applicants from India are eligible, otherwise \"international\".\n")
	b.WriteString("- \"eligibility\" is a JSON array of short requirement strings.\n")
	b.WriteString("- \"grantOrPrize\" is the money or benefit offered, as stated.\n")
	b.WriteString("- \"instagramCaption\" is one enthusiastic announcement sentence, no hashtags.\n")
	b.WriteString("\nReturn a JSON object with exactly these keys:\n")
	b.WriteString(extractionContract + "\n")
}

func clampText(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
