package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// TranscriptUnit is one chunk of recognized speech, as produced by the transcriber
type TranscriptUnit struct {
	Text             string  `json:"text"`
	StartOffsetMs    int64   `json:"start_offset_ms"`
	EndOffsetMs      int64   `json:"end_offset_ms"`
	SourceConfidence float64 `json:"source_confidence"` // 0..1, recognizer confidence
}

// ClaimCandidate represents a checkable factual assertion extracted from transcript text
type ClaimCandidate struct {
	ID             string `json:"id"`
	Text           string `json:"text"`                // The claim text itself
	Context        string `json:"context,omitempty"`   // Neighbouring sentences
	Importance     int    `json:"importance"`          // 1..10 checkability score
	OriginOffsetMs int64  `json:"origin_offset_ms"`    // Offset of the unit the claim came from
	Heuristic      string `json:"heuristic,omitempty"` // Which scoring signals fired (e.g. "number,date")
}

// DefaultImportanceThreshold is the minimum importance a claim needs to be checked
const DefaultImportanceThreshold = 6

// Hash returns the idempotency hash of the claim text
func (c ClaimCandidate) Hash() string {
	return ClaimHash(c.Text)
}

// NormalizeClaimText lowercases text, drops punctuation and collapses whitespace
// so that near-identical phrasings compare equal
func NormalizeClaimText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case r == '.' || r == '%' || r == '°':
			// Keep characters that change the meaning of numbers ("1.1", "5%")
			b.WriteRune(r)
		default:
			space = true
		}
	}

	return strings.TrimRight(b.String(), ".")
}

// ClaimHash generates the hash used to key verdicts within a parent work
func ClaimHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeClaimText(text)))
	return hex.EncodeToString(sum[:])
}

// ClaimID derives a stable claim identifier from its text
func ClaimID(text string) string {
	return "clm_" + ClaimHash(text)[:16]
}
