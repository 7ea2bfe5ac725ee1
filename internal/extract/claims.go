package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/truthcast/internal/model"
)

var (
	// ErrExtractionFailure is returned when a text block cannot be processed
	ErrExtractionFailure = errors.New("claim extraction failed")

	// ErrPanic marks an extractor crash, which is unrecoverable for a session
	ErrPanic = errors.New("extractor crashed")
)

const (
	minSentenceChars = 20
	maxSentenceChars = 200
	baseImportance   = 2
)

// Extractor turns a block of transcript text into ordered claim candidates
type Extractor interface {
	Extract(text string) ([]model.ClaimCandidate, error)
}

var (
	numberPattern      = regexp.MustCompile(`\d`)
	unitPattern        = regexp.MustCompile(`(?i)(%|°|\bpercent\b|\bper cent\b|\bmillion\b|\bbillion\b|\btrillion\b|\bthousand\b|\bdegrees?\b)`)
	yearPattern        = regexp.MustCompile(`\b(1[5-9]|20)\d{2}s?\b`)
	datePattern        = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|century|decade)\b`)
	comparativePattern = regexp.MustCompile(`(?i)\b(more than|less than|fewer than|higher|lower|largest|smallest|increase[sd]?|decrease[sd]?|rose|risen|rising|fell|fallen|dropped|doubled|tripled|because|due to|caused|causes|leads? to|led to|since|compared|below|above)\b`)
	attributionPattern = regexp.MustCompile(`(?i)\b(according to|study|studies|research|report|data|survey|statistics|census)\b`)
	opinionPattern     = regexp.MustCompile(`(?i)(\bi think\b|\bi believe\b|\bi feel\b|\bi guess\b|\bin my opinion\b|\bpersonally\b|\bmaybe\b|\bprobably\b|\bi love\b|\bi hate\b)`)
)

// HeuristicExtractor scores sentences for checkability without a language model
type HeuristicExtractor struct {
	minChars int
	maxChars int
}

// NewHeuristicExtractor creates a new heuristic claim extractor
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{
		minChars: minSentenceChars,
		maxChars: maxSentenceChars,
	}
}

// Extract splits text into sentences and scores each one.
// Candidates keep input order; normalized duplicates merge, keeping the highest importance.
func (e *HeuristicExtractor) Extract(text string) ([]model.ClaimCandidate, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrExtractionFailure)
	}

	sentences := splitSentences(text, e.minChars, e.maxChars)

	var claims []model.ClaimCandidate
	for i, sentence := range sentences {
		importance, signals := scoreSentence(sentence)
		claims = append(claims, model.ClaimCandidate{
			ID:         model.ClaimID(sentence),
			Text:       sentence,
			Context:    sentenceContext(sentences, i),
			Importance: importance,
			Heuristic:  strings.Join(signals, ","),
		})
	}

	return dedupeClaims(claims), nil
}

// scoreSentence returns the checkability score in [1,10] and the signals that fired
func scoreSentence(sentence string) (int, []string) {
	score := baseImportance
	var signals []string

	if numberPattern.MatchString(sentence) {
		score += 3
		signals = append(signals, "number")
	}
	if unitPattern.MatchString(sentence) {
		score++
		signals = append(signals, "unit")
	}
	if yearPattern.MatchString(sentence) || datePattern.MatchString(sentence) {
		score += 2
		signals = append(signals, "date")
	}
	if hasNamedEntity(sentence) {
		score += 2
		signals = append(signals, "entity")
	}
	if comparativePattern.MatchString(sentence) {
		score += 2
		signals = append(signals, "comparative")
	}
	if attributionPattern.MatchString(sentence) {
		score++
		signals = append(signals, "attribution")
	}
	if opinionPattern.MatchString(sentence) {
		score -= 3
		signals = append(signals, "opinion")
	}
	if strings.HasSuffix(strings.TrimSpace(sentence), "?") {
		score -= 2
		signals = append(signals, "question")
	}

	return model.Clamp(score, 1, 10), signals
}

// hasNamedEntity looks for a capitalized word past the first position
func hasNamedEntity(sentence string) bool {
	words := strings.Fields(sentence)
	for i, w := range words {
		if i == 0 {
			continue
		}
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if w == "" || w == "I" || strings.HasPrefix(w, "I'") {
			continue
		}
		r, _ := utf8.DecodeRuneInString(w)
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// sentenceContext joins the sentences around index i
func sentenceContext(sentences []string, i int) string {
	var parts []string
	if i > 0 {
		parts = append(parts, sentences[i-1])
	}
	if i+1 < len(sentences) {
		parts = append(parts, sentences[i+1])
	}
	return strings.Join(parts, " ")
}

// splitSentences splits text into sentences (simple heuristic)
func splitSentences(text string, minChars, maxChars int) []string {
	text = strings.ReplaceAll(text, "\n", " ")

	var sentences []string
	var current strings.Builder

	keep := func() {
		sentence := strings.TrimSpace(current.String())
		n := utf8.RuneCountInString(sentence)
		if n >= minChars && n <= maxChars {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	for i, r := range text {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			// Look ahead to avoid splitting on decimals and abbreviations
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				keep()
			}
		}
	}

	if current.Len() > 0 {
		keep()
	}

	return sentences
}

// dedupeClaims merges candidates with the same normalized text
func dedupeClaims(claims []model.ClaimCandidate) []model.ClaimCandidate {
	index := make(map[string]int)
	var unique []model.ClaimCandidate

	for _, claim := range claims {
		key := claim.Hash()
		if pos, ok := index[key]; ok {
			if claim.Importance > unique[pos].Importance {
				unique[pos].Importance = claim.Importance
				unique[pos].Heuristic = claim.Heuristic
			}
			continue
		}
		index[key] = len(unique)
		unique = append(unique, claim)
	}

	return unique
}

// ExtractUnit runs e over one transcript unit and stamps the unit's offset on every candidate.
// A panicking extractor is reported as ErrPanic.
func ExtractUnit(e Extractor, unit model.TranscriptUnit) (claims []model.ClaimCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = nil
			err = fmt.Errorf("%w: extractor panic: %v", ErrPanic, r)
		}
	}()

	claims, err = e.Extract(unit.Text)
	if err != nil {
		if !errors.Is(err, ErrExtractionFailure) {
			err = fmt.Errorf("%w: %v", ErrExtractionFailure, err)
		}
		return nil, err
	}
	for i := range claims {
		claims[i].OriginOffsetMs = unit.StartOffsetMs
	}
	return claims, nil
}

// Qualifying returns the candidates at or above threshold, preserving order
func Qualifying(claims []model.ClaimCandidate, threshold int) []model.ClaimCandidate {
	var out []model.ClaimCandidate
	for _, c := range claims {
		if c.Importance >= threshold {
			out = append(out, c)
		}
	}
	return out
}
