// Package transport builds the HTTP clients the launcher backends share.
package transport

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// NewClient creates a launcher HTTP client: resty on top of a retrying
// transport. Retries cover transient manager restarts; the circuit breaker
// above this layer covers a manager that is actually down.
func NewClient(baseURL string, timeout time.Duration) *resty.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "sam/1.0").
		SetTransport(retryClient.StandardClient().Transport)

	return client
}

// Reply is the common shape of a launcher manager response.
type Reply struct {
	ReturnValue  bool   `json:"returnValue"`
	ProcessID    int    `json:"processId"`
	WebProcessID string `json:"webprocessid"`
	ErrorText    string `json:"errorText"`
}
