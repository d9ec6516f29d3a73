package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbridge-ai/medgate/credential"
)

func TestRecordLookup(t *testing.T) {
	var gotAuth, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"resourceType":"Patient","id":"p-100"}`))
	}))
	defer ts.Close()

	c := NewRecordLookup(ts.URL)
	cred := &credential.Credential{Token: "tok-123"}
	raw, err := c.Execute(context.Background(), map[string]interface{}{"patient_id": "p-100"}, cred)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "/Patient/p-100", gotPath)
	assert.JSONEq(t, `{"resourceType":"Patient","id":"p-100"}`, string(raw))
}

func TestRecordLookupRequiresCredential(t *testing.T) {
	c := NewRecordLookup("http://unused")
	_, err := c.Execute(context.Background(), map[string]interface{}{"patient_id": "p"}, nil)
	assert.Error(t, err)
}

func TestLiteratureSearchQuery(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"esearchresult":{"idlist":["1","2"]}}`))
	}))
	defer ts.Close()

	c := NewLiteratureSearch(ts.URL)
	raw, err := c.Execute(context.Background(), map[string]interface{}{
		"query": "metformin lactic acidosis", "max_results": float64(5),
	}, nil)
	require.NoError(t, err)
	require.True(t, json.Valid(raw))
	assert.Contains(t, got, "db=pubmed")
	assert.Contains(t, got, "retmax=5")
}

func TestLiteratureSearchMissingQuery(t *testing.T) {
	c := NewLiteratureSearch("http://unused")
	_, err := c.Execute(context.Background(), map[string]interface{}{}, nil)
	assert.Error(t, err)
}

func TestConnectorNonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewTrialSearch(ts.URL)
	_, err := c.Execute(context.Background(), map[string]interface{}{"condition": "melanoma"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDrugLabelSectionExtraction(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"drug_interactions":["do not combine with X"],"dosage":["10mg"]}]}`))
	}))
	defer ts.Close()

	c := NewDrugLabel(ts.URL)
	raw, err := c.Execute(context.Background(), map[string]interface{}{
		"drug": "warfarin", "section": "drug_interactions",
	}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"drug_interactions":["do not combine with X"]}`, string(raw))

	_, err = c.Execute(context.Background(), map[string]interface{}{
		"drug": "warfarin", "section": "nonexistent",
	}, nil)
	assert.Error(t, err)
}
