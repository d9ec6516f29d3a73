package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/medbridge-ai/medgate/credential"
	"github.com/medbridge-ai/medgate/resilience"
)

// RecordLookup reads patient records from a FHIR-style clinical store. It
// always requires a delegated credential; the dispatcher refuses to call it
// without one.
type RecordLookup struct {
	BaseURL string
	breaker *resilience.Breaker
}

// NewRecordLookup creates a record connector for the given FHIR base URL.
func NewRecordLookup(baseURL string) *RecordLookup {
	return &RecordLookup{
		BaseURL: baseURL,
		breaker: resilience.NewBreaker(5, 30*time.Second),
	}
}

// Execute fetches one patient resource by id.
func (c *RecordLookup) Execute(ctx context.Context, args map[string]interface{}, cred *credential.Credential) (json.RawMessage, error) {
	if cred == nil {
		return nil, fmt.Errorf("record lookup requires a delegated credential")
	}
	patientID, err := stringArg(args, "patient_id")
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/Patient/%s", c.BaseURL, url.PathEscape(patientID))
	return getJSON(ctx, c.breaker, u, cred)
}
