package model

// SuccessCode is the envelope code upstream uses for a successful call.
const SuccessCode = "10000"

// RawPayload is one decoded upstream response envelope.
type RawPayload struct {
	// StatusCode is the HTTP status.
	StatusCode int
	// Code and Message come from the envelope.
	Code    string
	Message string
	// Data is the envelope's data object, decoded with json.Number for numbers.
	Data map[string]any
}
