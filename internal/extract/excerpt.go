package extract

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// PageExcerpt picks the passage of an HTML page that best matches the claim.
// Returns "" when no sentence shares a content word with the claim.
func PageExcerpt(htmlContent, claim string, maxChars int) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	sentences := splitSentences(extractVisibleText(doc), 20, 1000)
	terms := contentTerms(claim)
	if len(terms) == 0 || len(sentences) == 0 {
		return "", nil
	}

	best, bestScore := -1, 0
	for i, s := range sentences {
		score := 0
		for term := range contentTerms(s) {
			if terms[term] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return "", nil
	}

	excerpt := sentences[best]
	if best+1 < len(sentences) && len(excerpt)+len(sentences[best+1]) < maxChars {
		excerpt += " " + sentences[best+1]
	}
	return truncateRunes(excerpt, maxChars), nil
}

// extractVisibleText extracts text nodes from HTML, skipping scripts/styles and page chrome
func extractVisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "nav", "footer", "header":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return buf.String()
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true, "with": true,
	"have": true, "has": true, "was": true, "were": true, "are": true, "from": true,
	"been": true, "than": true, "into": true, "over": true, "about": true, "they": true,
}

// contentTerms returns the lowercase words of at least three characters that are not stop words
func contentTerms(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	}) {
		w = strings.Trim(w, ".")
		if len([]rune(w)) < 3 || stopWords[w] {
			continue
		}
		terms[w] = true
	}
	return terms
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
