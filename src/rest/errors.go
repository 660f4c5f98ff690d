package rest

import "fmt"

// APIError is the JSON error body Discord attaches to failed requests.
type APIError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Errors  any    `json:"errors,omitempty"`
}

// HTTPError is a request that failed with a definitive status. It is never
// retried: replaying the same invalid request would fail the same way.
type HTTPError struct {
	Status  int
	Code    int
	Message string
	Body    []byte
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// BanError is raised for a 429 without a Via header. Such responses come
// straight from Cloudflare rather than through Discord's proxies and mean
// the client is banned; retrying would make it worse.
type BanError struct {
	Status int
	Body   []byte
}

func (e *BanError) Error() string {
	return fmt.Sprintf("http %d without Via header: likely a Cloudflare ban, not retrying", e.Status)
}

// ExhaustedError reports that the retry budget ran out.
type ExhaustedError struct {
	Method string
	URL    string
	Tries  int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up sending %s %s after %d tries", e.Method, e.URL, e.Tries)
}
