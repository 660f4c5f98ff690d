package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	defaultBaseURL = "https://discord.com/api/v10"
	maxTries       = 5
)

// REST performs one logical API request at a time per bucket, with the
// retry and backoff semantics Discord expects. The hundreds of per-endpoint
// wrappers live elsewhere; they all funnel through Request.
type REST struct {
	httpClient *http.Client
	limiter    *RateLimiter
	botToken   string
	baseURL    string
	userAgent  string
	requestID  atomic.Int64
	log        *slog.Logger

	// backoffUnit scales the 1,3,5,7,9 second server-error backoff so
	// tests are not stuck sleeping for real.
	backoffUnit time.Duration
}

type RESTArguments struct {
	BotToken   string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewREST(args RESTArguments) *REST {
	if args.BaseURL == "" {
		args.BaseURL = defaultBaseURL
	}
	if args.HTTPClient == nil {
		args.HTTPClient = http.DefaultClient
	}
	if args.Logger == nil {
		args.Logger = slog.Default()
	}
	return &REST{
		httpClient:  args.HTTPClient,
		limiter:     NewRateLimiter(args.Logger),
		botToken:    args.BotToken,
		baseURL:     args.BaseURL,
		userAgent:   fmt.Sprintf("DiscordBot (https://github.com/petrelware/petrel, 0.1.0) %s", runtime.Version()),
		log:         args.Logger,
		backoffUnit: time.Second,
	}
}

// Close releases every rate limit lock so in-flight waiters return.
func (r *REST) Close() {
	r.limiter.Close()
}

// File is one multipart attachment.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type RequestOptions struct {
	QueryParams url.Values
	JSON        any
	Files       []File
	// Reason, when set, is sent URL-escaped as X-Audit-Log-Reason.
	Reason  string
	Headers map[string]string
}

// Request sends one logical request, bounded to five attempts.
// Rate limits (429) and server errors (500/502/504) are recovered locally;
// anything else is returned to the caller as a typed error. Context
// cancellation surfaces as ctx.Err from every wait point.
func (r *REST) Request(ctx context.Context, route Route, options *RequestOptions) ([]byte, error) {
	if options == nil {
		options = &RequestOptions{}
	}
	rid := r.requestID.Add(1)
	endpoint := r.baseURL + route.Endpoint()
	routeKey := route.Key()
	bucketHash := ""

	for try := 0; try < maxTries; try++ {
		bucket := r.limiter.GetBucket(routeKey, bucketHash)

		// Global first, then the route bucket. A locked global lock
		// stalls everything no matter how much route quota is left.
		if err := r.limiter.AcquireGlobal(ctx); err != nil {
			return nil, err
		}
		if err := bucket.Acquire(ctx); err != nil {
			return nil, err
		}

		req, err := r.makeRequest(ctx, route.Method, endpoint, options)
		if err != nil {
			return nil, err
		}
		res, err := r.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("request failed: %w", err)
		}
		body, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		r.log.Debug("request finished", "id", rid, "method", route.Method, "url", endpoint, "status", res.StatusCode)

		// Migrate onto the true bucket once the server names it.
		if h := res.Header.Get("X-RateLimit-Bucket"); h != "" && h != bucketHash {
			bucket = r.limiter.Migrate(bucket, routeKey, h)
			bucketHash = h
		}

		switch {
		case res.StatusCode >= 200 && res.StatusCode < 300:
			bucket.UpdateInfo(res.StatusCode, res.Header)
			return body, nil

		case res.StatusCode == http.StatusTooManyRequests:
			if res.Header.Get("Via") == "" {
				return nil, &BanError{Status: res.StatusCode, Body: body}
			}
			bucket.UpdateInfo(res.StatusCode, res.Header)
			retryAfter := parseSeconds(res.Header.Get("Retry-After"))
			if res.Header.Get("X-RateLimit-Scope") == "global" {
				r.limiter.LockGlobal(retryAfter)
				if err := r.limiter.AcquireGlobal(ctx); err != nil {
					return nil, err
				}
			} else {
				r.log.Info("route rate limit hit", "id", rid, "route", routeKey, "delay", retryAfter)
				bucket.LockFor(retryAfter)
				if err := bucket.Acquire(ctx); err != nil {
					return nil, err
				}
			}

		case res.StatusCode == http.StatusInternalServerError ||
			res.StatusCode == http.StatusBadGateway ||
			res.StatusCode == http.StatusGatewayTimeout:
			wait := time.Duration(1+try*2) * r.backoffUnit
			r.log.Info("server error, backing off", "id", rid, "status", res.StatusCode, "wait", wait)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}

		default:
			var apiErr APIError
			json.Unmarshal(body, &apiErr)
			return nil, &HTTPError{
				Status:  res.StatusCode,
				Code:    apiErr.Code,
				Message: apiErr.Message,
				Body:    body,
			}
		}
	}

	return nil, &ExhaustedError{Method: route.Method, URL: endpoint, Tries: maxTries}
}

func (r *REST) makeRequest(ctx context.Context, method string, endpoint string, options *RequestOptions) (*http.Request, error) {
	body, contentType, err := encodeBody(options)
	if err != nil {
		return nil, err
	}
	if len(options.QueryParams) > 0 {
		endpoint = endpoint + "?" + options.QueryParams.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	// Mandatory headers.
	req.Header.Set("Authorization", fmt.Sprintf("Bot %s", r.botToken))
	req.Header.Set("User-Agent", r.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if options.Reason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.PathEscape(options.Reason))
	}
	for k, v := range options.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func encodeBody(options *RequestOptions) (io.Reader, string, error) {
	if len(options.Files) > 0 {
		buf := new(bytes.Buffer)
		form := multipart.NewWriter(buf)
		if options.JSON != nil {
			data, err := json.Marshal(options.JSON)
			if err != nil {
				return nil, "", fmt.Errorf("failed to marshal payload json: %w", err)
			}
			part, err := form.CreateFormField("payload_json")
			if err != nil {
				return nil, "", err
			}
			part.Write(data)
		}
		for i, f := range options.Files {
			part, err := form.CreateFormFile(fmt.Sprintf("files[%d]", i), f.Name)
			if err != nil {
				return nil, "", err
			}
			part.Write(f.Data)
		}
		if err := form.Close(); err != nil {
			return nil, "", err
		}
		return buf, form.FormDataContentType(), nil
	}
	if options.JSON != nil {
		data, err := json.Marshal(options.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request json: %w", err)
		}
		return bytes.NewReader(data), "application/json; charset=UTF-8", nil
	}
	return nil, "", nil
}

func parseSeconds(raw string) time.Duration {
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *REST) Get(ctx context.Context, route Route, options *RequestOptions) ([]byte, error) {
	route.Method = http.MethodGet
	return r.Request(ctx, route, options)
}

func (r *REST) Post(ctx context.Context, route Route, options *RequestOptions) ([]byte, error) {
	route.Method = http.MethodPost
	return r.Request(ctx, route, options)
}

func (r *REST) Patch(ctx context.Context, route Route, options *RequestOptions) ([]byte, error) {
	route.Method = http.MethodPatch
	return r.Request(ctx, route, options)
}

func (r *REST) Put(ctx context.Context, route Route, options *RequestOptions) ([]byte, error) {
	route.Method = http.MethodPut
	return r.Request(ctx, route, options)
}

func (r *REST) Delete(ctx context.Context, route Route, options *RequestOptions) ([]byte, error) {
	route.Method = http.MethodDelete
	return r.Request(ctx, route, options)
}

// GatewayBotData is the Get Gateway Bot response, used to bootstrap the
// websocket url.
type GatewayBotData struct {
	URL               string `json:"url"`
	Shards            int    `json:"shards"`
	SessionStartLimit struct {
		Total          int `json:"total"`
		Remaining      int `json:"remaining"`
		ResetAfter     int `json:"reset_after"`
		MaxConcurrency int `json:"max_concurrency"`
	} `json:"session_start_limit"`
}

func (r *REST) GetGatewayBot(ctx context.Context) (*GatewayBotData, error) {
	body, err := r.Get(ctx, Route{Path: "/gateway/bot"}, nil)
	if err != nil {
		return nil, err
	}
	gb := new(GatewayBotData)
	if err := json.Unmarshal(body, gb); err != nil {
		return nil, fmt.Errorf("failed to decode gateway bot response: %w", err)
	}
	return gb, nil
}
