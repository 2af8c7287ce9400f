package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/metrics"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
)

// ErrEmptyToken is returned when the token exchange succeeds but carries no token.
var ErrEmptyToken = errors.New("backend returned an empty custom token")

// HTTPClient matches net/http.Client Do signature for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a typed wrapper around the parking backend. It never retries.
type Client struct {
	baseURL    string
	paths      Paths
	httpClient HTTPClient
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Config defines settings for the backend client.
type Config struct {
	BaseURL string
	Paths   Paths
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// New creates a backend client. A zero Paths value selects the canonical set.
func New(httpClient HTTPClient, cfg Config) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	paths := cfg.Paths
	if paths.paths == nil {
		paths = DefaultPaths()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		paths:      paths,
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}
}

// Paths returns the path set the client was built with.
func (c *Client) Paths() Paths {
	return c.paths
}

// CheckParkingImage uploads a sign photo for analysis.
func (c *Client) CheckParkingImage(ctx context.Context, filename, contentType string, image []byte, at time.Time) (model.ImageCheck, error) {
	var out model.ImageCheck
	if at.IsZero() {
		at = c.now()
	}
	if filename == "" {
		filename = "parking-sign.jpg"
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return out, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return out, fmt.Errorf("write image part: %w", err)
	}
	if err := mw.WriteField("datetime_str", at.UTC().Format(time.RFC3339)); err != nil {
		return out, fmt.Errorf("write datetime field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return out, fmt.Errorf("close multipart: %w", err)
	}

	err = c.do(ctx, EndpointCheckImage, http.MethodPost, &body, mw.FormDataContentType(), nil, &out)
	return out, err
}

type locationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Datetime  string  `json:"datetime"`
}

// CheckParkingLocation asks whether parking is allowed at a coordinate.
func (c *Client) CheckParkingLocation(ctx context.Context, lat, lng float64, at time.Time) (model.LocationCheck, error) {
	var out model.LocationCheck
	if at.IsZero() {
		at = c.now()
	}
	err := c.doJSON(ctx, EndpointCheckLocation, locationRequest{
		Latitude:  lat,
		Longitude: lng,
		Datetime:  at.UTC().Format(time.RFC3339),
	}, &out)
	return out, err
}

type searchRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SearchParking returns nearby parking signs and public parking facilities.
func (c *Client) SearchParking(ctx context.Context, lat, lng float64) (model.ParkingSearchResult, error) {
	var out model.ParkingSearchResult
	err := c.doJSON(ctx, EndpointSearch, searchRequest{Latitude: lat, Longitude: lng}, &out)
	return out, err
}

type followUpRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// FollowUpQuestion asks a question scoped to a previous analysis session.
func (c *Client) FollowUpQuestion(ctx context.Context, sessionID, question string) (model.FollowUpAnswer, error) {
	var out model.FollowUpAnswer
	err := c.doJSON(ctx, EndpointFollowUp, followUpRequest{SessionID: sessionID, Question: question}, &out)
	return out, err
}

// HealthCheck fetches the backend's health status.
func (c *Client) HealthCheck(ctx context.Context) (model.HealthStatus, error) {
	var out model.HealthStatus
	err := c.do(ctx, EndpointHealth, http.MethodGet, nil, "", nil, &out)
	return out, err
}

type tokenResponse struct {
	CustomToken string `json:"customToken"`
}

// GetFirebaseToken exchanges an identity-provider user id for a document-database
// custom token.
func (c *Client) GetFirebaseToken(ctx context.Context, identityID string) (string, error) {
	var out tokenResponse
	headers := map[string]string{"Authorization": "Bearer " + identityID}
	if err := c.do(ctx, EndpointFirebaseToken, http.MethodPost, nil, "", headers, &out); err != nil {
		return "", err
	}
	if out.CustomToken == "" {
		return "", ErrEmptyToken
	}
	return out.CustomToken, nil
}

func (c *Client) doJSON(ctx context.Context, ep Endpoint, payload, out interface{}) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", ep, err)
	}
	return c.do(ctx, ep, http.MethodPost, bytes.NewReader(buf), "application/json", nil, out)
}

func (c *Client) do(ctx context.Context, ep Endpoint, method string, body io.Reader, contentType string, headers map[string]string, out interface{}) (err error) {
	start := time.Now()
	defer func() { c.observe(ep, start, err) }()

	endpoint := c.baseURL + c.paths.Path(ep)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", ep, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", ep, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return &APIError{Endpoint: ep, StatusCode: resp.StatusCode, Body: string(text)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", ep, err)
	}
	return nil
}

func (c *Client) observe(ep Endpoint, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		outcome = fmt.Sprintf("http_%d", apiErr.StatusCode)
	case err != nil:
		outcome = "transport"
	}
	c.metrics.BackendCalls.WithLabelValues(string(ep), outcome).Inc()
	c.metrics.BackendLatency.WithLabelValues(string(ep)).Observe(time.Since(start).Seconds())
}
