package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/medbridge-ai/medgate/credential"
	"github.com/medbridge-ai/medgate/resilience"
)

// openFDADefault is the public openFDA API root.
const openFDADefault = "https://api.fda.gov"

// DrugInfo answers general drug questions from the openFDA label dataset.
type DrugInfo struct {
	BaseURL string
	breaker *resilience.Breaker
}

// NewDrugInfo creates a drug information connector.
func NewDrugInfo(baseURL string) *DrugInfo {
	if baseURL == "" {
		baseURL = openFDADefault
	}
	return &DrugInfo{BaseURL: baseURL, breaker: resilience.NewBreaker(5, 30*time.Second)}
}

// Execute looks up the label record for the named drug.
func (c *DrugInfo) Execute(ctx context.Context, args map[string]interface{}, cred *credential.Credential) (json.RawMessage, error) {
	name, err := stringArg(args, "drug")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("search", fmt.Sprintf(`openfda.generic_name:%q`, strings.ToLower(name)))
	q.Set("limit", "1")
	u := fmt.Sprintf("%s/drug/label.json?%s", c.BaseURL, q.Encode())
	return getJSON(ctx, c.breaker, u, nil)
}

// InteractionCheck reports documented interactions between two drugs by
// searching each label's drug_interactions section for the other drug.
type InteractionCheck struct {
	BaseURL string
	breaker *resilience.Breaker
}

// NewInteractionCheck creates an interaction connector.
func NewInteractionCheck(baseURL string) *InteractionCheck {
	if baseURL == "" {
		baseURL = openFDADefault
	}
	return &InteractionCheck{BaseURL: baseURL, breaker: resilience.NewBreaker(5, 30*time.Second)}
}

// Execute searches the label of drug_a for mentions of drug_b.
func (c *InteractionCheck) Execute(ctx context.Context, args map[string]interface{}, cred *credential.Credential) (json.RawMessage, error) {
	a, err := stringArg(args, "drug_a")
	if err != nil {
		return nil, err
	}
	b, err := stringArg(args, "drug_b")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("search", fmt.Sprintf(`openfda.generic_name:%q AND drug_interactions:%q`,
		strings.ToLower(a), strings.ToLower(b)))
	q.Set("limit", "1")
	u := fmt.Sprintf("%s/drug/label.json?%s", c.BaseURL, q.Encode())
	return getJSON(ctx, c.breaker, u, nil)
}

// DrugLabel fetches the full structured label for a drug.
type DrugLabel struct {
	BaseURL string
	breaker *resilience.Breaker
}

// NewDrugLabel creates a label connector.
func NewDrugLabel(baseURL string) *DrugLabel {
	if baseURL == "" {
		baseURL = openFDADefault
	}
	return &DrugLabel{BaseURL: baseURL, breaker: resilience.NewBreaker(5, 30*time.Second)}
}

// Execute fetches the label, optionally narrowed to one section.
func (c *DrugLabel) Execute(ctx context.Context, args map[string]interface{}, cred *credential.Credential) (json.RawMessage, error) {
	name, err := stringArg(args, "drug")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("search", fmt.Sprintf(`openfda.brand_name:%q openfda.generic_name:%q`,
		strings.ToLower(name), strings.ToLower(name)))
	q.Set("limit", "1")
	u := fmt.Sprintf("%s/drug/label.json?%s", c.BaseURL, q.Encode())

	raw, err := getJSON(ctx, c.breaker, u, nil)
	if err != nil {
		return nil, err
	}
	section, _ := args["section"].(string)
	if section == "" {
		return raw, nil
	}
	return extractSection(raw, section)
}

// extractSection pulls a single named section out of the first label result.
func extractSection(raw json.RawMessage, section string) (json.RawMessage, error) {
	var payload struct {
		Results []map[string]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Results) == 0 {
		return raw, nil
	}
	if v, ok := payload.Results[0][section]; ok {
		out, err := json.Marshal(map[string]json.RawMessage{section: v})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("label has no section %q", section)
}
