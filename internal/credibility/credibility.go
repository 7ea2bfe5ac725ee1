package credibility

import (
	"net/url"
	"strings"

	"github.com/ppiankov/truthcast/internal/model"
)

// DefaultScore is the credibility of a domain with no reputation entry
const DefaultScore = 60

// defaultReputation seeds the domain reputation table
var defaultReputation = map[string]int{
	// Wire services and public broadcasters
	"reuters.com":        95,
	"apnews.com":         95,
	"ap.org":             95,
	"bbc.com":            90,
	"bbc.co.uk":          90,
	"npr.org":            85,
	"theguardian.com":    85,
	"nytimes.com":        85,
	"washingtonpost.com": 85,
	"economist.com":      85,
	"ft.com":             85,
	"wsj.com":            85,
	"bloomberg.com":      85,
	"pbs.org":            85,
	"cnn.com":            75,
	"foxnews.com":        70,

	// Academic and scientific publishers
	"nature.com":              92,
	"science.org":             92,
	"thelancet.com":           92,
	"nejm.org":                92,
	"bmj.com":                 90,
	"pubmed.ncbi.nlm.nih.gov": 90,
	"europepmc.org":           90,
	"doi.org":                 88,
	"arxiv.org":               75,

	// International and statistical bodies
	"who.int":               92,
	"un.org":                90,
	"worldbank.org":         88,
	"oecd.org":              88,
	"imf.org":               88,
	"ipcc.ch":               92,
	"ons.gov.uk":            92,
	"eurostat.ec.europa.eu": 90,

	// Reference
	"wikipedia.org":  65,
	"britannica.com": 80,
}

// suffixRule scores and classifies hosts under a public suffix
type suffixRule struct {
	suffix string
	score  int
	kind   model.SourceType
}

// Longer suffixes first so ".gov.uk" wins over ".uk"-style matches
var suffixRules = []suffixRule{
	{".gov.uk", 90, model.SourceTypeGovernment},
	{".gov.au", 90, model.SourceTypeGovernment},
	{".gc.ca", 90, model.SourceTypeGovernment},
	{".europa.eu", 88, model.SourceTypeGovernment},
	{".ac.uk", 85, model.SourceTypeAcademic},
	{".edu.au", 85, model.SourceTypeAcademic},
	{".gov", 90, model.SourceTypeGovernment},
	{".mil", 85, model.SourceTypeGovernment},
	{".int", 88, model.SourceTypeGovernment},
	{".edu", 85, model.SourceTypeAcademic},
}

// Scorer assigns reputation-based credibility to sources.
// Scores depend only on the domain, never on the claim.
type Scorer struct {
	reputation   map[string]int
	government   map[string]bool
	academic     map[string]bool
	defaultScore int
}

// NewScorer creates a scorer from config overrides layered over the built-in table
func NewScorer(config *model.CredibilityConfig) *Scorer {
	if config == nil {
		config = &model.DefaultConfig().Credibility
	}

	s := &Scorer{
		reputation:   make(map[string]int, len(defaultReputation)+len(config.DomainScores)),
		government:   map[string]bool{"who.int": true, "un.org": true, "worldbank.org": true, "oecd.org": true, "imf.org": true, "ipcc.ch": true},
		academic:     map[string]bool{"nature.com": true, "science.org": true, "thelancet.com": true, "nejm.org": true, "bmj.com": true, "pubmed.ncbi.nlm.nih.gov": true, "europepmc.org": true, "doi.org": true, "arxiv.org": true},
		defaultScore: config.DefaultScore,
	}
	if s.defaultScore <= 0 {
		s.defaultScore = DefaultScore
	}

	for domain, score := range defaultReputation {
		s.reputation[domain] = score
	}
	for domain, score := range config.DomainScores {
		s.reputation[normalizeHost(domain)] = model.Clamp(score, 0, 100)
	}
	for _, domain := range config.GovernmentDomains {
		s.government[normalizeHost(domain)] = true
	}
	for _, domain := range config.AcademicDomains {
		s.academic[normalizeHost(domain)] = true
	}

	return s
}

// Score returns the credibility of a URL or bare domain in [0,100]
func (s *Scorer) Score(rawURL string) int {
	host := Domain(rawURL)
	if host == "" {
		return s.defaultScore
	}

	// Walk parent domains: news.bbc.co.uk -> bbc.co.uk -> co.uk
	for d := host; d != ""; d = parentDomain(d) {
		if score, ok := s.reputation[d]; ok {
			return score
		}
	}

	for _, rule := range suffixRules {
		if strings.HasSuffix(host, rule.suffix) {
			return rule.score
		}
	}

	return s.defaultScore
}

// Classify returns the source type of a URL, falling back to hint
func (s *Scorer) Classify(rawURL string, hint model.SourceType) model.SourceType {
	host := Domain(rawURL)

	for d := host; d != ""; d = parentDomain(d) {
		if s.government[d] {
			return model.SourceTypeGovernment
		}
		if s.academic[d] {
			return model.SourceTypeAcademic
		}
	}

	for _, rule := range suffixRules {
		if strings.HasSuffix(host, rule.suffix) {
			return rule.kind
		}
	}

	if hint != "" {
		return hint
	}
	for d := host; d != ""; d = parentDomain(d) {
		if _, ok := s.reputation[d]; ok {
			return model.SourceTypeNews
		}
	}
	return model.SourceTypeOther
}

// Domain extracts the lowercase host of a URL without "www." or port.
// Bare domains are accepted.
func Domain(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return normalizeHost(parsed.Hostname())
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	return strings.TrimPrefix(host, "www.")
}

func parentDomain(host string) string {
	idx := strings.Index(host, ".")
	if idx < 0 {
		return ""
	}
	parent := host[idx+1:]
	if !strings.Contains(parent, ".") {
		// Stop before bare TLDs
		return ""
	}
	return parent
}
