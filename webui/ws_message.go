// Package webui serves the live dashboard: a WebSocket feed of telemetry
// snapshots and VLM responses, plus a small JSON API.
// This file contains the WebSocket message envelope and payload types.
package webui

import (
	"encoding/json"
	"time"

	"livevlm/inference"
	"livevlm/telemetry"
)

// Message type constants for WebSocket communication.
const (
	// MessageTypeStatsUpdate carries a fresh hardware telemetry snapshot.
	MessageTypeStatsUpdate = "stats_update"

	// MessageTypeVLMResponse carries the latest vision-language model output.
	MessageTypeVLMResponse = "vlm_response"

	// MessageTypeInitial contains the full state snapshot sent on connection.
	MessageTypeInitial = "initial"
)

// WSMessage is the envelope for all WebSocket messages. The Data field
// holds a type-specific payload decoded based on Type.
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewWSMessage creates a message with the current timestamp.
func NewWSMessage(msgType string, data interface{}) WSMessage {
	return WSMessage{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// MarshalJSON serializes the message to JSON bytes.
func (m WSMessage) MarshalJSON() ([]byte, error) {
	type Alias WSMessage
	return json.Marshal(Alias(m))
}

// StatsUpdateData wraps a telemetry snapshot for broadcast.
type StatsUpdateData struct {
	Stats telemetry.Snapshot `json:"stats"`
}

// VLMResponseData wraps the coordinator's current result for broadcast.
type VLMResponseData struct {
	Response     string `json:"response"`
	IsProcessing bool   `json:"is_processing"`
}

// InitialData is the complete state snapshot sent to a newly connected
// client so the dashboard renders immediately instead of waiting for the
// next poll cycle.
type InitialData struct {
	// Stats is the most recent telemetry snapshot (nil before first poll).
	Stats *telemetry.Snapshot `json:"stats,omitempty"`

	// History holds the bounded utilization series for chart seeding.
	History telemetry.Series `json:"history"`

	// VLM is the current inference result.
	VLM VLMResponseData `json:"vlm"`
}

// NewStatsUpdateMessage creates a telemetry snapshot broadcast message.
func NewStatsUpdateMessage(snap telemetry.Snapshot) WSMessage {
	return NewWSMessage(MessageTypeStatsUpdate, StatsUpdateData{Stats: snap})
}

// NewVLMResponseMessage creates a VLM result broadcast message.
func NewVLMResponseMessage(res inference.Result) WSMessage {
	return NewWSMessage(MessageTypeVLMResponse, VLMResponseData{
		Response:     res.Text,
		IsProcessing: res.IsProcessing,
	})
}

// NewInitialMessage creates the initial state snapshot message.
func NewInitialMessage(data InitialData) WSMessage {
	return NewWSMessage(MessageTypeInitial, data)
}
