package verdict

import (
	"math"
	"sort"

	"github.com/ppiankov/truthcast/internal/model"
)

// Label thresholds on the weighted stance shares
const (
	decisiveShare    = 0.75 // share needed for verified/false
	negligibleShare  = 0.15 // opposing share tolerated by verified/false
	significantShare = 0.30 // dispute share that makes a claim disputed
	singleSourceCap  = 49   // confidence ceiling with fewer than two usable perspectives
)

// Evidence pairs a judged perspective with the source it came from
type Evidence struct {
	Perspective model.Perspective
	Source      model.Source
}

// weight is the influence of one perspective: relevance × credibility, both in [0,1]
func (e Evidence) weight() float64 {
	return float64(e.Perspective.RelevanceScore) / 100 * float64(e.Source.CredibilityScore) / 100
}

// Breakdown shows how a label and confidence were derived
type Breakdown struct {
	Usable          int
	Support         float64
	Dispute         float64
	Mixed           float64
	MeanCredibility float64
	Label           model.Label
	Confidence      int
	Drivers         []Evidence // usable evidence, heaviest first
}

// Total is the combined weight of all usable perspectives
func (b Breakdown) Total() float64 {
	return b.Support + b.Dispute + b.Mixed
}

// Aggregate derives label and confidence from judged evidence.
// A perspective is usable when it takes a stance and its relevance reaches minRelevance.
func Aggregate(items []Evidence, minRelevance int) Breakdown {
	var b Breakdown
	credSum := 0

	for _, e := range items {
		if e.Perspective.Stance == model.StanceNeutral || e.Perspective.RelevanceScore < minRelevance {
			continue
		}
		w := e.weight()
		switch e.Perspective.Stance {
		case model.StanceSupports:
			b.Support += w
		case model.StanceDisputes:
			b.Dispute += w
		case model.StanceMixed:
			b.Mixed += w
		default:
			continue
		}
		b.Usable++
		credSum += e.Source.CredibilityScore
		b.Drivers = append(b.Drivers, e)
	}

	total := b.Total()
	if b.Usable == 0 || total <= 0 {
		b.Label = model.LabelUncertain
		b.Confidence = 0
		b.Drivers = nil
		return b
	}

	b.MeanCredibility = float64(credSum) / float64(b.Usable)
	b.Label = label(b.Support/total, b.Dispute/total)
	b.Confidence = confidence(b, total)

	sort.SliceStable(b.Drivers, func(i, j int) bool {
		return b.Drivers[i].weight() > b.Drivers[j].weight()
	})
	return b
}

// label applies the weighted-majority rule to the support and dispute shares
func label(support, dispute float64) model.Label {
	switch {
	case support >= decisiveShare && dispute < negligibleShare:
		return model.LabelVerified
	case dispute >= decisiveShare && support < negligibleShare:
		return model.LabelFalse
	case (dispute >= significantShare && support >= negligibleShare) || dispute > support:
		return model.LabelDisputed
	default:
		return model.LabelPartial
	}
}

// confidence blends agreement and mean credibility, discounted for thin evidence
func confidence(b Breakdown, total float64) int {
	agreement := math.Abs(b.Support-b.Dispute) / total
	raw := 100 * (0.5*agreement + 0.5*b.MeanCredibility/100) * countFactor(b.Usable)

	c := model.Clamp(int(math.Round(raw)), 0, 100)
	if b.Usable < 2 && c > singleSourceCap {
		c = singleSourceCap
	}
	return c
}

func countFactor(n int) float64 {
	switch {
	case n <= 1:
		return 1
	case n == 2:
		return 0.95
	case n == 3:
		return 0.98
	default:
		return 1
	}
}
