// Package intent scores free text against a fixed set of healthcare intent
// categories. Keyword sets per category are evaluated uniformly so new
// categories are additive; no category inspects another's result.
package intent

import (
	"strings"

	"github.com/medbridge-ai/medgate/types"
)

// Result is the classifier output: the single best category and its
// confidence. Confidence saturates with match count and never reaches 1.
type Result struct {
	Intent     types.Intent `json:"intent"`
	Confidence float64      `json:"confidence"`
}

// category pairs an intent with its keyword set. Declaration order is the
// tie-break: when two categories score equally, the first declared wins.
type category struct {
	intent   types.Intent
	keywords []string
}

var categories = []category{
	{types.IntentLiterature, []string{
		"literature", "pubmed", "study", "studies", "paper", "journal",
		"meta-analysis", "systematic review", "evidence", "published", "abstract",
	}},
	{types.IntentTrials, []string{
		"clinical trial", "trial", "trials", "enrolling", "recruiting",
		"nct", "phase ii", "phase iii", "eligibility criteria", "randomized",
	}},
	{types.IntentDrugInformation, []string{
		"drug", "dose", "dosage", "dosing", "interaction", "contraindication",
		"side effect", "adverse", "medication", "pharmacolog", "drug label",
	}},
	{types.IntentDocumentation, []string{
		"document", "progress note", "soap note", "discharge summary",
		"chart note", "write up", "dictate", "referral letter", "summarize the visit",
	}},
	{types.IntentDecisionSupport, []string{
		"differential", "diagnosis", "recommend", "treatment plan", "guideline",
		"next step", "management", "workup", "rule out",
	}},
	{types.IntentAdministrative, []string{
		"appointment", "schedule", "billing", "insurance", "prior authorization",
		"fax", "paperwork", "intake form",
	}},
}

// Classifier scores text against the fixed category list.
type Classifier struct {
	categories []category
}

// New returns a classifier with the standard category set.
func New() *Classifier {
	return &Classifier{categories: categories}
}

// Classify returns the highest-scoring category and its confidence. If no
// category scores above zero, it returns the general intent with zero
// confidence.
func (c *Classifier) Classify(text string) Result {
	low := strings.ToLower(strings.TrimSpace(text))
	best := Result{Intent: types.IntentGeneral, Confidence: 0}
	bestMatches := 0
	for _, cat := range c.categories {
		m := matchCount(low, cat.keywords)
		if m > bestMatches {
			bestMatches = m
			best = Result{Intent: cat.intent, Confidence: saturate(m)}
		}
	}
	return best
}

// saturate maps match count to a confidence in [0,1): 1 match = 0.5,
// 2 = 0.67, 3 = 0.75, approaching but never reaching certainty.
func saturate(matches int) float64 {
	return float64(matches) / float64(matches+1)
}

func matchCount(s string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(s, k) {
			n++
		}
	}
	return n
}
