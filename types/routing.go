package types

// RiskTier is a discrete, monotonically escalating sensitivity level.
// A detected category can only raise the tier, never lower it.
type RiskTier int

const (
	TierNone RiskTier = iota
	TierLow
	TierMedium
	TierHigh
	TierCritical
)

// String returns the string representation of the risk tier.
func (t RiskTier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	case TierCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// AtLeast reports whether the tier meets or exceeds min.
func (t RiskTier) AtLeast(min RiskTier) bool { return t >= min }

// Intent is a healthcare request category assigned by the classifier.
type Intent string

const (
	IntentLiterature      Intent = "literature_search"
	IntentTrials          Intent = "trial_search"
	IntentDrugInformation Intent = "drug_information"
	IntentDocumentation   Intent = "documentation"
	IntentDecisionSupport Intent = "decision_support"
	IntentAdministrative  Intent = "administrative"
	IntentGeneral         Intent = "general"
)

// DestinationKind names the class of destination a request is routed to.
type DestinationKind string

const (
	DestLocalGeneration  DestinationKind = "local-generation"
	DestRemoteGeneration DestinationKind = "remote-generation"
	DestInternalHandler  DestinationKind = "internal-handler"
	DestTool             DestinationKind = "tool"
)

// RoutingDecision is the output of the routing engine. The Justification
// field is required output, not optional logging: it is the audit trail for
// why PHI-adjacent content was or was not escalated.
type RoutingDecision struct {
	Kind          DestinationKind `json:"kind"`
	Destination   string          `json:"destination"`
	Justification string          `json:"justification"`
	Sensitive     bool            `json:"sensitive"`
	Intent        Intent          `json:"intent"`
	Tier          string          `json:"tier"`
}
