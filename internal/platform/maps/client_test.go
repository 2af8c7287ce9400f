package maps

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func okResponse(body string) *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString(body))}
}

func TestLoadRequiresKey(t *testing.T) {
	if err := New(nil, Config{}).Load(context.Background()); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
	if err := New(nil, Config{APIKey: "k"}).Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestAutocomplete(t *testing.T) {
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		if req.URL.Path != "/maps/api/place/autocomplete/json" {
			t.Errorf("path = %s", req.URL.Path)
		}
		if q.Get("input") != "pike pl" || q.Get("components") != "country:us" || q.Get("key") != "k" {
			t.Errorf("unexpected query %v", q)
		}
		return okResponse(`{"status":"OK","predictions":[{"place_id":"p1","description":"Pike Place Market, Seattle, WA, USA"}]}`), nil
	})
	got, err := New(rt, Config{APIKey: "k"}).Autocomplete(context.Background(), "pike pl")
	if err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if len(got) != 1 || got[0].PlaceID != "p1" {
		t.Fatalf("unexpected predictions %+v", got)
	}
}

func TestAutocompleteZeroResults(t *testing.T) {
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return okResponse(`{"status":"ZERO_RESULTS","predictions":[]}`), nil
	})
	got, err := New(rt, Config{APIKey: "k"}).Autocomplete(context.Background(), "zzzz")
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestPlaceDetails(t *testing.T) {
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("place_id") != "p1" {
			t.Errorf("place_id = %q", req.URL.Query().Get("place_id"))
		}
		return okResponse(`{"status":"OK","result":{"name":"Pike Place Market","formatted_address":"85 Pike St, Seattle, WA 98101, USA","geometry":{"location":{"lat":47.6097,"lng":-122.3422}}}}`), nil
	})
	got, err := New(rt, Config{APIKey: "k"}).PlaceDetails(context.Background(), "p1")
	if err != nil {
		t.Fatalf("PlaceDetails: %v", err)
	}
	if got.Lat != 47.6097 || got.Lng != -122.3422 || got.Name != "Pike Place Market" {
		t.Fatalf("unexpected place %+v", got)
	}
}

func TestPlaceDetailsWithoutGeometry(t *testing.T) {
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return okResponse(`{"status":"OK","result":{"name":"Nowhere"}}`), nil
	})
	if _, err := New(rt, Config{APIKey: "k"}).PlaceDetails(context.Background(), "p1"); !errors.Is(err, ErrPlaceNotFound) {
		t.Fatalf("expected ErrPlaceNotFound, got %v", err)
	}
}
