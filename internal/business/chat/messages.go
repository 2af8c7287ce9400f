package chat

import (
	"fmt"
	"time"

	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"github.com/google/uuid"
)

// Fixed copy shown in the conversation.
const (
	WelcomeText       = "🅿️ Welcome to CanIParkHere! Upload a parking sign photo or use your location."
	AnalyzingText     = "🔍 Analyzing parking sign..."
	CheckingText      = "📍 Checking parking rules..."
	ThinkingText      = "💭 Thinking..."
	NoGeolocationText = "❌ Geolocation not supported."
	DefaultResultText = "Analysis complete!"
	ImageErrorHint    = "Try again with a clearer, well-lit photo of the sign."
)

// FallbackCoordinate is used when the client's geolocation is denied or times out.
var FallbackCoordinate = model.Coordinate{Lat: 47.669253, Lng: -122.311622}

func newMessage(kind model.MessageKind, text string, data *model.MessageData, now time.Time) model.ChatMessage {
	return model.ChatMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		Data:      data,
		CreatedAt: &now,
	}
}

func welcomeMessage() model.ChatMessage {
	return model.ChatMessage{ID: uuid.NewString(), Kind: model.KindBot, Text: WelcomeText}
}

func photoMessage(img PreparedImage, now time.Time) model.ChatMessage {
	success := img.Err == nil
	return newMessage(model.KindUser, "📷 Parking sign photo", &model.MessageData{
		Type:             model.DataUserImage,
		ImageData:        img.Preview,
		OriginalSize:     img.OriginalSize,
		CompressedSize:   img.CompressedSize,
		CompressionRatio: img.CompressionRatio,
		Dimensions:       img.Dimensions,
		Success:          &success,
	}, now)
}

// imageResultMessage picks the message kind and display text for an image check.
func imageResultMessage(res model.ImageCheck, now time.Time) model.ChatMessage {
	kind := model.MessageKind(res.MessageType)
	if !kind.Valid() {
		kind = model.KindParking
	}
	text := firstNonEmpty(res.Answer, res.Message, res.Reason, DefaultResultText)
	res.Answer = text
	return newMessage(kind, text, &model.MessageData{Type: model.DataParkingResult, Parking: &res}, now)
}

func imageErrorMessage(preview, errText string, now time.Time) model.ChatMessage {
	return newMessage(model.KindError, "❌ "+errText, &model.MessageData{
		Type:       model.DataErrorWithPreview,
		ImageData:  preview,
		Error:      errText,
		Suggestion: ImageErrorHint,
	}, now)
}

func coordinateMessage(c model.Coordinate, fallback bool, now time.Time) model.ChatMessage {
	text := fmt.Sprintf("📍 Location: %.6f, %.6f", c.Lat, c.Lng)
	if fallback {
		text = fmt.Sprintf("📍 Using fallback: %v, %v", c.Lat, c.Lng)
	}
	coord := c
	return newMessage(model.KindUser, text, &model.MessageData{
		Type:       model.DataCoordinates,
		Coordinate: &coord,
		Fallback:   fallback,
	}, now)
}

func locationResultMessage(res model.LocationCheck, now time.Time) model.ChatMessage {
	text := firstNonEmpty(res.Message, DefaultResultText)
	return newMessage(model.KindParking, text, &model.MessageData{Type: model.DataLocationResult, Location: &res}, now)
}

func errorMessage(errText string, now time.Time) model.ChatMessage {
	return newMessage(model.KindError, "❌ "+errText, nil, now)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
