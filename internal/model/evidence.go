package model

import "time"

// Source is a normalized search result consulted as evidence for a claim
type Source struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	URL              string     `json:"url"`
	Domain           string     `json:"domain"`
	Type             SourceType `json:"source_type"`
	CredibilityScore int        `json:"credibility_score"` // 0..100, from domain reputation only
	RelevanceScore   int        `json:"relevance_score"`   // 0..100, provider ranking
	Excerpt          string     `json:"excerpt,omitempty"`
	Provider         string     `json:"provider,omitempty"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	RetrievedAt      time.Time  `json:"retrieved_at"`
}

// SourceType classifies where a source comes from
type SourceType string

const (
	SourceTypeNews       SourceType = "news"
	SourceTypeAcademic   SourceType = "academic"
	SourceTypeGovernment SourceType = "government"
	SourceTypeOther      SourceType = "other"
)

// AllSourceTypes lists every searchable source type
func AllSourceTypes() []SourceType {
	return []SourceType{SourceTypeNews, SourceTypeAcademic, SourceTypeGovernment, SourceTypeOther}
}

// ParseSourceType converts a config string to a SourceType
func ParseSourceType(s string) (SourceType, bool) {
	switch SourceType(s) {
	case SourceTypeNews, SourceTypeAcademic, SourceTypeGovernment, SourceTypeOther:
		return SourceType(s), true
	default:
		return "", false
	}
}

// Perspective is one source's stance on one claim
type Perspective struct {
	SourceID       string `json:"source_id"`
	Stance         Stance `json:"stance"`
	RelevanceScore int    `json:"relevance_score"` // 0..100
	Excerpt        string `json:"excerpt,omitempty"`
	Explanation    string `json:"explanation,omitempty"`
}

// Stance is the position a source takes on a claim
type Stance string

const (
	StanceSupports Stance = "supports"
	StanceDisputes Stance = "disputes"
	StanceNeutral  Stance = "neutral"
	StanceMixed    Stance = "mixed"
)

// ParseStance normalizes a stance string from a reasoning backend
func ParseStance(s string) (Stance, bool) {
	switch Stance(s) {
	case StanceSupports, StanceDisputes, StanceNeutral, StanceMixed:
		return Stance(s), true
	case "support", "supported", "agrees":
		return StanceSupports, true
	case "dispute", "disputed", "contradicts", "refutes":
		return StanceDisputes, true
	default:
		return "", false
	}
}

// Clamp limits v to [lo, hi]
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
