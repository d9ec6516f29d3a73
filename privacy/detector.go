// Package privacy scans free text for patterns that indicate
// patient-identifying information. Detection is purely pattern based and
// deterministic: the same input always yields the same categories, the same
// confidence and the same risk tier, which is what makes routing decisions
// auditable.
package privacy

import (
	"regexp"
	"unicode/utf8"

	"github.com/medbridge-ai/medgate/types"
)

// Category names reported by the detector.
const (
	CategoryIdentifierSequence = "identifier-sequence"
	CategoryPatientName        = "patient-name"
	CategoryDateOfBirth        = "date-of-birth"
	CategoryRecordNumber       = "record-number"
	CategoryAddressFacility    = "address-facility"
	CategoryUnscannable        = "unscannable"
)

// presentThreshold is the accumulated confidence above which Present is set.
// Tunable; the rule ordering in the routing engine is the contract, not this
// constant.
const presentThreshold = 0.45

// Report is the detector output for one input text.
type Report struct {
	Present    bool           `json:"present"`
	Confidence float64        `json:"confidence"`
	Categories []string       `json:"categories"`
	Tier       types.RiskTier `json:"-"`
	TierName   string         `json:"tier"`
}

// check is one independent pattern check. Each matching check contributes
// its weight to the accumulated confidence and escalates the tier to at
// least its own tier. A category never lowers risk.
type check struct {
	category string
	re       *regexp.Regexp
	weight   float64
	tier     types.RiskTier
}

// checks are evaluated in declaration order. Order only affects the order
// of reported categories, never the resulting confidence or tier.
var checks = []check{
	{
		category: CategoryIdentifierSequence,
		re:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b\d{9,}\b`),
		weight:   0.45,
		tier:     types.TierCritical,
	},
	{
		category: CategoryPatientName,
		re:       regexp.MustCompile(`(?:[Pp]atient|Mr\.|Mrs\.|Ms\.)\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+`),
		weight:   0.35,
		tier:     types.TierHigh,
	},
	{
		category: CategoryDateOfBirth,
		re:       regexp.MustCompile(`(?i)\b(?:dob|date of birth|born)\b[:\s]*\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}`),
		weight:   0.30,
		tier:     types.TierMedium,
	},
	{
		category: CategoryRecordNumber,
		re:       regexp.MustCompile(`(?i)\b(?:mrn|medical record(?: number)?|record number|chart number)\b[\s:#]*\d{4,}`),
		weight:   0.40,
		tier:     types.TierHigh,
	},
	{
		category: CategoryAddressFacility,
		re:       regexp.MustCompile(`(?is)\b\d+\s+\w+\s+(?:st|street|ave|avenue|rd|road|blvd|boulevard|dr|drive|ln|lane)\b.*\b(?:hospital|clinic|medical center|health center|infirmary)\b`),
		weight:   0.25,
		tier:     types.TierMedium,
	},
}

// Detector scans text for patient-identifying content. The zero value is
// not usable; construct with New.
type Detector struct {
	checks []check
}

// New returns a detector with the standard check set.
func New() *Detector {
	return &Detector{checks: checks}
}

// Scan evaluates every check against text and accumulates confidence and
// tier. Unscannable input degrades to maximum sensitivity rather than
// failing open.
func (d *Detector) Scan(text string) Report {
	if !utf8.ValidString(text) {
		return Report{
			Present:    true,
			Confidence: 1.0,
			Categories: []string{CategoryUnscannable},
			Tier:       types.TierCritical,
			TierName:   types.TierCritical.String(),
		}
	}

	rep := Report{Tier: types.TierNone, Categories: []string{}}
	for _, c := range d.checks {
		if !c.re.MatchString(text) {
			continue
		}
		rep.Categories = append(rep.Categories, c.category)
		rep.Confidence += c.weight
		if c.tier > rep.Tier {
			rep.Tier = c.tier
		}
	}
	if rep.Confidence > 1.0 {
		rep.Confidence = 1.0
	}
	rep.Present = rep.Confidence >= presentThreshold
	rep.TierName = rep.Tier.String()
	return rep
}

// HasCategory reports whether the scan matched the named category.
func (r Report) HasCategory(name string) bool {
	for _, c := range r.Categories {
		if c == name {
			return true
		}
	}
	return false
}
