package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medbridge-ai/medgate/resilience"
)

// HTTPRefresher obtains delegated tokens from an OAuth-style token
// endpoint using the client-credentials grant. Token acquisition is
// idempotent, so transient failures are retried here; the manager above
// never retries.
type HTTPRefresher struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTP         *http.Client
}

// NewHTTPRefresher creates a refresher for the given token endpoint.
func NewHTTPRefresher(tokenURL, clientID, clientSecret string) *HTTPRefresher {
	return &HTTPRefresher{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTP:         &http.Client{Timeout: 15 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorDesc    string `json:"error_description,omitempty"`
}

// Refresh posts a client-credentials request scoped to the audience and
// converts the response into a Credential.
func (r *HTTPRefresher) Refresh(ctx context.Context, audience string, prev *Credential) (*Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", r.ClientID)
	form.Set("client_secret", r.ClientSecret)
	form.Set("audience", audience)
	if prev != nil && prev.RefreshMaterial != "" {
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", prev.RefreshMaterial)
	}

	var tr tokenResponse
	err := resilience.Retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.TokenURL,
			strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := r.HTTP.Do(req)
		if err != nil {
			return resilience.Retryable(err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return resilience.Retryable(err)
		}
		if resp.StatusCode >= 500 {
			return resilience.Retryable(fmt.Errorf("token endpoint returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("token endpoint returned %d", resp.StatusCode)
		}
		if err := json.Unmarshal(body, &tr); err != nil {
			return fmt.Errorf("decode token response: %w", err)
		}
		if tr.Error != "" {
			return fmt.Errorf("token endpoint error %s: %s", tr.Error, tr.ErrorDesc)
		}
		if tr.AccessToken == "" {
			return fmt.Errorf("token endpoint returned empty access token")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	expires := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if tr.ExpiresIn <= 0 {
		expires = expiryFromJWT(tr.AccessToken)
	}
	return &Credential{
		Token:           tr.AccessToken,
		Audience:        audience,
		ExpiresAt:       expires,
		RefreshMaterial: tr.RefreshToken,
	}, nil
}

// expiryFromJWT extracts the exp claim when the endpoint omits expires_in.
// The token is not verified here; verification belongs to the upstream that
// consumes it. Unknown expiry degrades to a short lifetime.
func expiryFromJWT(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(1 * time.Minute)
}
