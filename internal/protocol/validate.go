package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// payloadFor maps each client→server message type to its payload shape.
// A nil entry means the payload carries nothing.
var payloadFor = map[string]func() interface{}{
	TypeMoodSubmit:      func() interface{} { return &MoodSubmitPayload{} },
	TypeGuidanceRequest: func() interface{} { return &GuidanceRequestPayload{} },
	TypeBreathingStart:  func() interface{} { return &BreathingStartPayload{} },
	TypeBreathingStop:   nil,
	TypePlayerPlay:      nil,
	TypePlayerPause:     nil,
	TypePlayerNext:      nil,
	TypePlayerEnded:     nil,
	TypePlayerSelect:    func() interface{} { return &PlayerSelectPayload{} },
	TypeHistoryRequest:  nil,
}

// ValidateClientMessage validates a raw JSON message from a client.
// Returns the parsed Message and any validation error.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	newPayload, ok := payloadFor[msg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	if newPayload == nil {
		return &msg, nil
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	if _, err := DecodePayload(&msg, newPayload()); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodePayload unmarshals msg.Payload into dst and runs its validation tags.
func DecodePayload[T any](msg *Message, dst T) (T, error) {
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		return dst, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
	}
	if err := validate.Struct(dst); err != nil {
		return dst, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
	}
	return dst, nil
}

// NewErrorMessage creates an error message ready to send to the client.
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}
