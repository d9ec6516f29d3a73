package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/medbridge-ai/medgate/credential"
	"github.com/medbridge-ai/medgate/resilience"
)

// LiteratureSearch queries the PubMed E-utilities search endpoint.
type LiteratureSearch struct {
	BaseURL string
	breaker *resilience.Breaker
}

// NewLiteratureSearch creates a literature connector. An empty baseURL uses
// the public NCBI endpoint.
func NewLiteratureSearch(baseURL string) *LiteratureSearch {
	if baseURL == "" {
		baseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	}
	return &LiteratureSearch{
		BaseURL: baseURL,
		breaker: resilience.NewBreaker(5, 30*time.Second),
	}
}

// Execute searches PubMed for the query argument.
func (c *LiteratureSearch) Execute(ctx context.Context, args map[string]interface{}, cred *credential.Credential) (json.RawMessage, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	max := intArg(args, "max_results", 10)

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", query)
	q.Set("retmode", "json")
	q.Set("retmax", strconv.Itoa(max))
	u := fmt.Sprintf("%s/esearch.fcgi?%s", c.BaseURL, q.Encode())
	return getJSON(ctx, c.breaker, u, nil)
}

// TrialSearch queries the ClinicalTrials.gov v2 study search API.
type TrialSearch struct {
	BaseURL string
	breaker *resilience.Breaker
}

// NewTrialSearch creates a trial connector. An empty baseURL uses the
// public ClinicalTrials.gov endpoint.
func NewTrialSearch(baseURL string) *TrialSearch {
	if baseURL == "" {
		baseURL = "https://clinicaltrials.gov/api/v2"
	}
	return &TrialSearch{
		BaseURL: baseURL,
		breaker: resilience.NewBreaker(5, 30*time.Second),
	}
}

// Execute searches studies matching the condition argument, optionally
// filtered by recruitment status.
func (c *TrialSearch) Execute(ctx context.Context, args map[string]interface{}, cred *credential.Credential) (json.RawMessage, error) {
	condition, err := stringArg(args, "condition")
	if err != nil {
		return nil, err
	}
	max := intArg(args, "max_results", 10)

	q := url.Values{}
	q.Set("query.cond", condition)
	q.Set("pageSize", strconv.Itoa(max))
	if status, ok := args["status"].(string); ok && status != "" {
		q.Set("filter.overallStatus", status)
	}
	u := fmt.Sprintf("%s/studies?%s", c.BaseURL, q.Encode())
	return getJSON(ctx, c.breaker, u, nil)
}
