// Package wsp implements the WebSocket subscription protocol: clients
// authenticate, optionally negotiate a binary codec, subscribe to
// progress topics, and receive job lifecycle events with credit-based
// flow control.
package wsp

import (
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
)

// Frame is the protocol envelope. Every message on the wire is a Frame.
type Frame struct {
	ID        string          `json:"id" msgpack:"id"`
	Type      FrameType       `json:"type" msgpack:"type"`
	Method    string          `json:"method,omitempty" msgpack:"method,omitempty"`
	CorrelID  string          `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`
	Token     string          `json:"token,omitempty" msgpack:"token,omitempty"`
	Data      json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`
	Error     *ErrorDetail    `json:"error,omitempty" msgpack:"error,omitempty"`
	Channel   string          `json:"channel,omitempty" msgpack:"channel,omitempty"`
	Credits   int             `json:"credits,omitempty" msgpack:"credits,omitempty"`
	Timestamp time.Time       `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in an error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// Well-known methods.
const (
	MethodAuth        = "auth"
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
)

// Well-known error codes.
const (
	ErrCodeBadRequest     = 400
	ErrCodeUnauthorized   = 401
	ErrCodeMethodNotFound = 405
)

// AuthRequest is the payload of the first frame every client sends.
type AuthRequest struct {
	Token  string `json:"token"`
	Format string `json:"format,omitempty"` // "json" (default) or "msgpack"
}

// AuthResponse confirms authentication and the negotiated codec.
type AuthResponse struct {
	Format    string `json:"format"`
	SessionID string `json:"session_id"`
}

// SubscribeRequest subscribes the connection to a topic channel.
type SubscribeRequest struct {
	Channel string `json:"channel"`
	Credits int    `json:"credits,omitempty"` // initial credits (0 = broker default)
}

// UnsubscribeRequest removes a subscription.
type UnsubscribeRequest struct {
	Channel string `json:"channel"`
}

// NewResponseFrame creates a response to a request.
func NewResponseFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        generateFrameID(),
		Type:      FrameResponse,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a request.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:        generateFrameID(),
		Type:      FrameErr,
		CorrelID:  correlID,
		Error:     &ErrorDetail{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// NewEventFrame creates an event frame for a subscription channel.
func NewEventFrame(channel string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        generateFrameID(),
		Type:      FrameEvent,
		Channel:   channel,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

var frameCounter atomic.Int64

// generateFrameID returns a new unique frame ID. Timestamp plus counter
// keeps IDs ordered and collision-free within a process.
func generateFrameID() string {
	return time.Now().UTC().Format("20060102150405.000000000") + "-" +
		strconv.FormatInt(frameCounter.Add(1), 10)
}
