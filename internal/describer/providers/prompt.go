package providers

import (
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	// SystemPrompt frames the model as an image describer
	SystemPrompt = "You describe images in detail."

	// UserPrompt asks for a short caption. The length is advisory; the
	// pipeline enforces its own cap afterwards.
	UserPrompt = "Describe this image in less than 200 characters."

	// NoDescription is returned when a well-formed response carries no text
	NoDescription = "No description available."
)

// ErrUnexpectedFormat is returned when a provider response has an unrecognized shape
var ErrUnexpectedFormat = errors.New("unexpected response format")

// APIError is an error object reported by the inference service.
// Its message is surfaced verbatim.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// DataURI encodes image as an inline base64 data URI
func DataURI(image []byte, mimeType string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
}
