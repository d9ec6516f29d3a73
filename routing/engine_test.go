package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbridge-ai/medgate/intent"
	"github.com/medbridge-ai/medgate/privacy"
	"github.com/medbridge-ai/medgate/types"
)

func newEngine(t *testing.T, remote bool) *Engine {
	t.Helper()
	store := NewSessionStore(time.Minute)
	t.Cleanup(store.Close)
	return New(privacy.New(), intent.New(), store, remote)
}

func TestSensitiveContentRoutesInternal(t *testing.T) {
	e := newEngine(t, true)
	d := e.Decide("s1", "My patient John Smith, DOB 01/02/1980, MRN 445566, reports chest pain")

	assert.Equal(t, types.DestInternalHandler, d.Kind)
	assert.Equal(t, HandlerSecureIntake, d.Destination)
	assert.True(t, d.Sensitive)
	assert.Contains(t, d.Justification, "rule 1")
}

func TestSensitiveFlagIsSticky(t *testing.T) {
	e := newEngine(t, true)
	first := e.Decide("s1", "Patient John Smith, MRN 445566")
	require.True(t, first.Sensitive)

	// A later benign request in the same session stays on the privacy
	// preserving branch even though its own text scores zero.
	later := e.Decide("s1", "thanks, that is all for now")
	assert.True(t, later.Sensitive)
	assert.Equal(t, types.DestInternalHandler, later.Kind)
	assert.Contains(t, later.Justification, "already confirmed")

	// A different session is unaffected.
	other := e.Decide("s2", "thanks, that is all for now")
	assert.False(t, other.Sensitive)
}

func TestSensitiveDocumentationIntent(t *testing.T) {
	e := newEngine(t, true)
	d := e.Decide("s1", "Draft a discharge summary for patient John Smith, MRN 445566")

	assert.Equal(t, types.DestInternalHandler, d.Kind)
	assert.Equal(t, HandlerDocumentIntake, d.Destination)
}

func TestSensitiveDecisionSupportStaysLocal(t *testing.T) {
	e := newEngine(t, true)
	d := e.Decide("s1", "Recommended workup for patient John Smith, MRN 445566?")

	assert.Equal(t, types.DestLocalGeneration, d.Kind)
	assert.True(t, d.Sensitive)
}

func TestToolIntentRouting(t *testing.T) {
	e := newEngine(t, true)
	d := e.Decide("s1", "What does the latest literature say about metformin and lactic acidosis risk?")

	assert.Equal(t, types.DestTool, d.Kind)
	assert.Equal(t, "search_literature", d.Destination)
	assert.False(t, d.Sensitive)
	assert.Contains(t, d.Justification, "rule 2")
}

func TestRemoteFallback(t *testing.T) {
	e := newEngine(t, true)
	d := e.Decide("s1", "hello there, nice to meet you")

	assert.Equal(t, types.DestRemoteGeneration, d.Kind)
	assert.Contains(t, d.Justification, "rule 3")
}

func TestLocalDefaultWithoutRemote(t *testing.T) {
	e := newEngine(t, false)
	d := e.Decide("s1", "hello there, nice to meet you")

	assert.Equal(t, types.DestLocalGeneration, d.Kind)
	assert.Contains(t, d.Justification, "rule 4")
}

func TestEveryDecisionCarriesJustification(t *testing.T) {
	e := newEngine(t, true)
	for _, text := range []string{
		"Patient John Smith, MRN 445566",
		"latest literature on statins",
		"hello there",
	} {
		d := e.Decide("s-a", text)
		assert.NotEmpty(t, d.Justification, "text: %s", text)
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	store := NewSessionStore(30 * time.Millisecond)
	defer store.Close()

	s := store.Get("gone")
	s.ConfirmSensitive()
	require.Equal(t, 1, store.Len())

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestConfirmSensitiveIsMonotonic(t *testing.T) {
	s := &SessionState{ID: "x"}
	assert.False(t, s.SensitiveConfirmed())
	s.ConfirmSensitive()
	s.ConfirmSensitive()
	assert.True(t, s.SensitiveConfirmed())
}
