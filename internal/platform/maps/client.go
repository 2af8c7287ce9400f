package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNoAPIKey is returned by Load when no maps platform key is configured.
	ErrNoAPIKey = errors.New("maps platform API key is not configured")
	// ErrPlaceNotFound is returned when place details carry no geometry.
	ErrPlaceNotFound = errors.New("place has no geometry")
)

// HTTPClient matches net/http.Client Do signature for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Prediction is one place-autocomplete suggestion.
type Prediction struct {
	PlaceID     string `json:"place_id"`
	Description string `json:"description"`
}

// Place is the resolved location of a prediction or POI.
type Place struct {
	PlaceID string  `json:"placeId"`
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Client wraps the maps platform's place autocomplete and place details services.
type Client struct {
	apiKey     string
	baseURL    string
	country    string
	httpClient HTTPClient
}

// Config defines settings for the maps client.
type Config struct {
	APIKey  string
	BaseURL string
	Country string
}

// New creates a maps client.
func New(httpClient HTTPClient, cfg Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://maps.googleapis.com/maps/api/place"
	}
	country := cfg.Country
	if country == "" {
		country = "us"
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(base, "/"),
		country:    country,
		httpClient: httpClient,
	}
}

// Load checks that the platform can be used.
func (c *Client) Load(ctx context.Context) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	return ctx.Err()
}

type autocompleteResponse struct {
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message"`
	Predictions  []Prediction `json:"predictions"`
}

// Autocomplete returns raw predictions for free-text input, restricted to the
// configured country.
func (c *Client) Autocomplete(ctx context.Context, input string) ([]Prediction, error) {
	params := url.Values{}
	params.Set("input", input)
	params.Set("components", "country:"+c.country)
	params.Set("key", c.apiKey)

	var out autocompleteResponse
	if err := c.get(ctx, "/autocomplete/json", params, &out); err != nil {
		return nil, err
	}
	switch out.Status {
	case "OK":
		return out.Predictions, nil
	case "ZERO_RESULTS":
		return nil, nil
	}
	return nil, fmt.Errorf("autocomplete status %s: %s", out.Status, out.ErrorMessage)
}

type detailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       struct {
		Name             string `json:"name"`
		FormattedAddress string `json:"formatted_address"`
		Geometry         *struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"result"`
}

// PlaceDetails resolves a place id to coordinates.
func (c *Client) PlaceDetails(ctx context.Context, placeID string) (Place, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "geometry,name,formatted_address")
	params.Set("key", c.apiKey)

	var out detailsResponse
	if err := c.get(ctx, "/details/json", params, &out); err != nil {
		return Place{}, err
	}
	if out.Status != "OK" {
		return Place{}, fmt.Errorf("place details status %s: %s", out.Status, out.ErrorMessage)
	}
	if out.Result.Geometry == nil {
		return Place{}, ErrPlaceNotFound
	}
	return Place{
		PlaceID: placeID,
		Name:    out.Result.Name,
		Address: out.Result.FormattedAddress,
		Lat:     out.Result.Geometry.Location.Lat,
		Lng:     out.Result.Geometry.Location.Lng,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("maps request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("maps status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
