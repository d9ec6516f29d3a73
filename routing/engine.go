// Package routing decides where a free-text request goes: a privacy
// preserving internal path, a specialized tool, or a generation backend.
// Rules are evaluated in strict order; the privacy rule always wins.
package routing

import (
	"fmt"

	"github.com/medbridge-ai/medgate/intent"
	"github.com/medbridge-ai/medgate/logger"
	"github.com/medbridge-ai/medgate/privacy"
	"github.com/medbridge-ai/medgate/types"
)

// Internal handler destinations for privacy-escalated requests.
const (
	HandlerDocumentIntake = "document-intake"
	HandlerSecureIntake   = "secure-intake"
)

// toolConfidenceThreshold gates rule 2: below it, intent alone does not
// route to a tool.
const toolConfidenceThreshold = 0.45

// intentTools maps tool-eligible intents to registry tool names.
var intentTools = map[types.Intent]string{
	types.IntentLiterature:      "search_literature",
	types.IntentTrials:          "search_trials",
	types.IntentDrugInformation: "drug_information",
}

// Engine combines detector and classifier output with per-session state to
// produce routing decisions. It is the single writer of session state.
type Engine struct {
	detector   *privacy.Detector
	classifier *intent.Classifier
	sessions   *SessionStore
	remote     bool
	log        *logger.Logger
}

// New creates a routing engine. remoteConfigured reports whether a remote
// generation backend exists; without one, rule 3 never fires.
func New(det *privacy.Detector, cls *intent.Classifier, sessions *SessionStore, remoteConfigured bool) *Engine {
	return &Engine{
		detector:   det,
		classifier: cls,
		sessions:   sessions,
		remote:     remoteConfigured,
		log:        logger.Get().WithField("component", "routing"),
	}
}

// Sessions exposes the store for read access (logging, shutdown).
func (e *Engine) Sessions() *SessionStore { return e.sessions }

// Decide scans and classifies text, applies the routing policy and mutates
// the session state. Decisions within one session are serialized, so the
// sticky escalation is applied in arrival order.
func (e *Engine) Decide(sessionID, text string) types.RoutingDecision {
	state := e.sessions.Get(sessionID)
	state.mu.Lock()
	defer state.mu.Unlock()

	report := e.detector.Scan(text)
	cls := e.classifier.Classify(text)
	state.LastTier = report.Tier
	state.LastIntent = cls.Intent

	decision := e.apply(state, report, cls)
	e.log.Info("routing decision", map[string]interface{}{
		"session":       sessionID,
		"kind":          decision.Kind,
		"destination":   decision.Destination,
		"sensitive":     decision.Sensitive,
		"tier":          decision.Tier,
		"intent":        decision.Intent,
		"justification": decision.Justification,
	})
	return decision
}

func (e *Engine) apply(state *SessionState, report privacy.Report, cls intent.Result) types.RoutingDecision {
	// Rule 1: privacy escalation. Wins regardless of intent confidence.
	if report.Present || report.Tier.AtLeast(types.TierMedium) || state.SensitiveConfirmed() {
		trigger := "session already confirmed sensitive"
		if report.Present {
			trigger = fmt.Sprintf("detector matched categories %v", report.Categories)
		} else if report.Tier.AtLeast(types.TierMedium) {
			trigger = fmt.Sprintf("risk tier %s", report.Tier)
		}
		state.ConfirmSensitive()

		d := types.RoutingDecision{
			Sensitive: true,
			Intent:    cls.Intent,
			Tier:      report.Tier.String(),
		}
		switch cls.Intent {
		case types.IntentDocumentation:
			d.Kind = types.DestInternalHandler
			d.Destination = HandlerDocumentIntake
			d.Justification = fmt.Sprintf("rule 1: %s; documentation intent handled by internal document path", trigger)
		case types.IntentDecisionSupport:
			d.Kind = types.DestLocalGeneration
			d.Destination = "local"
			d.Justification = fmt.Sprintf("rule 1: %s; decision-support intent kept on local-only generation", trigger)
		default:
			d.Kind = types.DestInternalHandler
			d.Destination = HandlerSecureIntake
			d.Justification = fmt.Sprintf("rule 1: %s; routed to generic secure intake", trigger)
		}
		return d
	}

	// Rule 2: confident tool intent.
	if tool, ok := intentTools[cls.Intent]; ok && cls.Confidence > toolConfidenceThreshold {
		return types.RoutingDecision{
			Kind:          types.DestTool,
			Destination:   tool,
			Sensitive:     false,
			Intent:        cls.Intent,
			Tier:          report.Tier.String(),
			Justification: fmt.Sprintf("rule 2: intent %s at confidence %.2f maps to tool %s", cls.Intent, cls.Confidence, tool),
		}
	}

	// Rule 3: no sensitivity signal at all and a remote backend exists.
	if report.Tier == types.TierNone && e.remote {
		return types.RoutingDecision{
			Kind:          types.DestRemoteGeneration,
			Destination:   "remote",
			Sensitive:     false,
			Intent:        cls.Intent,
			Tier:          report.Tier.String(),
			Justification: "rule 3: no sensitivity signal and remote backend configured",
		}
	}

	// Rule 4: default.
	return types.RoutingDecision{
		Kind:          types.DestLocalGeneration,
		Destination:   "local",
		Sensitive:     false,
		Intent:        cls.Intent,
		Tier:          report.Tier.String(),
		Justification: "rule 4: default local generation",
	}
}
