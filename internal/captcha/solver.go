// Package captcha implements the CAPTCHA Handler: submitting a
// challenge to an external solver, polling for the token, and
// injecting it back into the page, with a manual-checkbox fallback
// when no solver is configured.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	pollInterval  = 5 * time.Second
	maxPollTries  = 24 // 24 * 5s = 120s budget
	maxAttemptsPerURL = 2
)

// ChallengeKind names the solver-side task type.
type ChallengeKind string

const (
	ChallengeRecaptchaV2 ChallengeKind = "recaptcha_v2"
	ChallengeHCaptcha    ChallengeKind = "hcaptcha"
)

// SolverClient talks to a 2captcha/anti-captcha-shaped in.php/res.php
// HTTP API.
type SolverClient struct {
	APIKey     string
	BaseURL    string // e.g. "https://2captcha.com"
	HTTPClient *http.Client
}

func NewSolverClient(apiKey, baseURL string) *SolverClient {
	if baseURL == "" {
		baseURL = "https://2captcha.com"
	}
	return &SolverClient{APIKey: apiKey, BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 15 * time.Second}}
}

// Configured reports whether a solver API key was provided.
func (c *SolverClient) Configured() bool {
	return c != nil && strings.TrimSpace(c.APIKey) != ""
}

// Submit posts the challenge to the solver's in.php endpoint and
// returns its task id.
func (c *SolverClient) Submit(ctx context.Context, kind ChallengeKind, sitekey, pageURL string) (string, error) {
	method := "userrecaptcha"
	if kind == ChallengeHCaptcha {
		method = "hcaptcha"
	}
	q := url.Values{
		"key":       {c.APIKey},
		"method":    {method},
		"googlekey": {sitekey},
		"sitekey":   {sitekey},
		"pageurl":   {pageURL},
		"json":      {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/in.php?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("solver submit: %w", err)
	}
	defer resp.Body.Close()
	var out solverEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("solver submit: decode: %w", err)
	}
	if out.Status != 1 {
		return "", fmt.Errorf("solver submit rejected: %s", out.Request)
	}
	return out.Request, nil
}

// Poll hits res.php every pollInterval for up to maxPollTries rounds,
// returning the solved token on success.
func (c *SolverClient) Poll(ctx context.Context, taskID string) (string, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for i := 0; i < maxPollTries; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		token, ready, err := c.pollOnce(ctx, taskID)
		if err != nil {
			return "", err
		}
		if ready {
			return token, nil
		}
	}
	return "", fmt.Errorf("solver poll timed out after %v", pollInterval*maxPollTries)
}

func (c *SolverClient) pollOnce(ctx context.Context, taskID string) (token string, ready bool, err error) {
	q := url.Values{
		"key":    {c.APIKey},
		"action": {"get"},
		"id":     {taskID},
		"json":   {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/res.php?"+q.Encode(), nil)
	if err != nil {
		return "", false, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("solver poll: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, err
	}
	var out solverEnvelope
	if err := json.Unmarshal(body, &out); err != nil {
		return "", false, fmt.Errorf("solver poll: decode: %w", err)
	}
	if out.Status == 1 {
		return out.Request, true, nil
	}
	if out.Request == "CAPCHA_NOT_READY" {
		return "", false, nil
	}
	return "", false, fmt.Errorf("solver poll error: %s", out.Request)
}

type solverEnvelope struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}
