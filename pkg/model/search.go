package model

// ParkingSign is a street sign returned by the search endpoint.
type ParkingSign struct {
	ID          string   `json:"id"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Category    string   `json:"category"`
	Description *string  `json:"description,omitempty"`
	Rules       *string  `json:"rules,omitempty"`
	Text        *string  `json:"text,omitempty"`
	DistanceM   *float64 `json:"distance_m,omitempty"`
}

// PublicParkingSpot is a garage, lot or street facility returned by the search endpoint.
type PublicParkingSpot struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	Address        *string  `json:"address,omitempty"`
	Capacity       *int     `json:"capacity,omitempty"`
	AvailableSpots *int     `json:"available_spots,omitempty"`
	HourlyRate     *float64 `json:"hourly_rate,omitempty"`
	DistanceM      *float64 `json:"distance_m,omitempty"`
	FacilityType   *string  `json:"facility_type,omitempty"`
}

// ParkingSearchResult is the transient result of one search call.
type ParkingSearchResult struct {
	SessionID            string              `json:"session_id"`
	ParkingSignResults   []ParkingSign       `json:"parking_sign_results"`
	PublicParkingResults []PublicParkingSpot `json:"public_parking_results"`
	ProcessingMethod     string              `json:"processing_method"`
}

// HealthStatus mirrors the backend's health response.
type HealthStatus struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services,omitempty"`
	Timestamp string            `json:"timestamp"`
	Error     *string           `json:"error,omitempty"`
}
