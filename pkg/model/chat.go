package model

import "time"

// MessageKind is the rendering class of a chat message.
type MessageKind string

const (
	KindBot      MessageKind = "bot"
	KindUser     MessageKind = "user"
	KindParking  MessageKind = "parking"
	KindFollowUp MessageKind = "followup"
	KindError    MessageKind = "error"
)

func (k MessageKind) Valid() bool {
	switch k {
	case KindBot, KindUser, KindParking, KindFollowUp, KindError:
		return true
	}
	return false
}

// DataType tags the variant stored in MessageData.
type DataType string

const (
	DataUserImage        DataType = "user_image"
	DataParkingResult    DataType = "parking_result"
	DataLocationResult   DataType = "location_result"
	DataFollowUp         DataType = "followup"
	DataErrorWithPreview DataType = "error_with_preview"
	DataCoordinates      DataType = "coordinates"
)

// MessageData is the tagged payload of a chat message. Only the fields that belong to
// Type are populated.
type MessageData struct {
	Type DataType `json:"type"`

	// user_image
	ImageData        string      `json:"imageData,omitempty"`
	OriginalSize     int64       `json:"originalSize,omitempty"`
	CompressedSize   int64       `json:"compressedSize,omitempty"`
	CompressionRatio float64     `json:"compressionRatio,omitempty"`
	Dimensions       *Dimensions `json:"dimensions,omitempty"`
	Success          *bool       `json:"success,omitempty"`

	// parking_result / location_result
	Parking  *ImageCheck    `json:"parking,omitempty"`
	Location *LocationCheck `json:"location,omitempty"`

	// followup
	Answer string `json:"answer,omitempty"`

	// error_with_preview
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`

	// coordinates
	Coordinate *Coordinate `json:"coordinate,omitempty"`
	Fallback   bool        `json:"fallback,omitempty"`
}

// Dimensions are pixel sizes of an uploaded image.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ChatMessage is one entry of a conversation log. Messages are immutable once appended,
// except that a nil CreatedAt is backfilled when the view mounts.
type ChatMessage struct {
	ID        string       `json:"id"`
	Kind      MessageKind  `json:"kind"`
	Text      string       `json:"text"`
	Data      *MessageData `json:"data,omitempty"`
	CreatedAt *time.Time   `json:"createdAt"`
}

// ImageCheck mirrors the backend's image analysis response.
type ImageCheck struct {
	MessageType        string `json:"messageType,omitempty"`
	SessionID          string `json:"session_id"`
	IsParkingSignFound string `json:"isParkingSignFound"`
	CanPark            string `json:"canPark"`
	Reason             string `json:"reason"`
	Rules              string `json:"rules"`
	ParsedText         string `json:"parsedText"`
	Advice             string `json:"advice"`
	ProcessingMethod   string `json:"processing_method"`
	Answer             string `json:"answer,omitempty"`
	Message            string `json:"message,omitempty"`
}

// LocationCheck mirrors the backend's location check response.
type LocationCheck struct {
	CanPark          bool    `json:"canPark"`
	Message          string  `json:"message"`
	ProcessingMethod string  `json:"processing_method"`
	Latitude         float64 `json:"latitude,omitempty"`
	Longitude        float64 `json:"longitude,omitempty"`
}

// FollowUpAnswer mirrors the backend's follow-up response.
type FollowUpAnswer struct {
	Answer string `json:"answer"`
}
