// Package verification turns the free-text answer of a vision model into a
// structured waste classification.
package verification

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NoWasteType is the wasteType value the model uses to signal an image
// without waste.
const NoWasteType = "none"

// Prompt is the fixed instruction sent alongside every image.
const Prompt = `You are an expert in waste management and recycling. Analyze this image and determine if there is any waste present.
If waste is detected, provide:
1. The type of waste (e.g., plastic, paper, glass, metal, organic)
2. An estimate of the quantity or amount (in kg or liters)
3. Your confidence level in this assessment (as a percentage between 0 and 100)

If no waste is detected, respond with: {"wasteType":"none","quantity":"0","confidence":100}

Otherwise, respond with a JSON object in this exact format:
{"wasteType":"type of waste","quantity":"estimated quantity with unit","confidence":percentage}`

var (
	// ErrNoJSONObject means the response has no {...} span to decode.
	ErrNoJSONObject = errors.New("no valid JSON object found in response")
	// ErrMalformedJSON means the extracted span is not a JSON object.
	ErrMalformedJSON = errors.New("malformed JSON object in response")
	// ErrInvalidResult means the object lacks a required field or has a
	// field of the wrong type.
	ErrInvalidResult = errors.New("invalid response format")
	// ErrNoWaste means the model answered with the no-waste sentinel.
	ErrNoWaste = errors.New("no waste detected")
)

// Result is a successful classification.
type Result struct {
	WasteType  string  `json:"wasteType"`
	Quantity   string  `json:"quantity"`
	Confidence float64 `json:"confidence"`
}

// Metadata returns the serialized result stored with a report as provenance.
func (r Result) Metadata() string {
	b, _ := json.Marshal(r)
	return string(b)
}

// ExtractJSON returns the substring from the first '{' to the last '}'
// inclusive. Nested or reordered braces are not inspected.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSONObject
	}
	return text[start : end+1], nil
}

type rawResult struct {
	WasteType  json.RawMessage `json:"wasteType"`
	Quantity   json.RawMessage `json:"quantity"`
	Confidence json.RawMessage `json:"confidence"`
}

// ParseResponse extracts and validates the classification embedded in text.
//
// The sentinel check runs before field validation, so any object whose
// wasteType is "none" yields ErrNoWaste regardless of its other fields.
func ParseResponse(text string) (*Result, error) {
	span, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	wasteType, isString := decodeString(raw.WasteType)
	if isString && wasteType == NoWasteType {
		return nil, ErrNoWaste
	}
	if !isString || wasteType == "" {
		return nil, fmt.Errorf("%w: wasteType must be a non-empty string", ErrInvalidResult)
	}

	quantity, ok := decodeQuantity(raw.Quantity)
	if !ok {
		return nil, fmt.Errorf("%w: quantity is required", ErrInvalidResult)
	}

	confidence, ok := decodeNumber(raw.Confidence)
	if !ok {
		return nil, fmt.Errorf("%w: confidence must be a number", ErrInvalidResult)
	}

	return &Result{WasteType: wasteType, Quantity: quantity, Confidence: confidence}, nil
}

func decodeString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

// decodeQuantity accepts a non-empty string or a non-zero number, the latter
// kept as its literal text.
func decodeQuantity(raw json.RawMessage) (string, bool) {
	if s, ok := decodeString(raw); ok {
		return s, s != ""
	}
	if n, ok := decodeNumber(raw); ok && n != 0 {
		return string(bytes.TrimSpace(raw)), true
	}
	return "", false
}
