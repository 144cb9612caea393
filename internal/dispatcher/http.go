package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// maxErrorBody caps how much of a provider error body is kept for logs
const maxErrorBody = 2048

func newRestClient(baseURL string, httpClient *http.Client) *resty.Client {
	var c *resty.Client
	if httpClient != nil {
		c = resty.NewWithClient(httpClient)
	} else {
		c = resty.New().SetTimeout(30 * time.Second)
	}
	return c.
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// postJSON sends body and returns the raw response on 2xx. Anything else
// becomes a *ProviderError carrying the status and body.
func postJSON(ctx context.Context, provider string, req *resty.Request, path string, body any) ([]byte, error) {
	resp, err := req.SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Err: fmt.Errorf("request failed: %w", err)}
	}

	raw := resp.Body()
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode(),
			Body:       truncate(string(raw), maxErrorBody),
			Err:        errors.New(errorMessage(raw, resp.Status())),
		}
	}
	return raw, nil
}

// firstString returns the first non-empty value among the gjson paths
func firstString(raw []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(raw, p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func errorMessage(raw []byte, status string) string {
	if msg := firstString(raw, "error.message", "message", "error", "errorMessage"); msg != "" {
		return msg
	}
	return "unexpected response " + status
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
