// Package dispatch fans events out to worker backends and merges their
// replies.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pochenphys/Group-Project/internal/line"
	"github.com/pochenphys/Group-Project/internal/transport"
)

// Backend roles decide which backends an event reaches.
const (
	RoleAI     = "ai"     // primary analysis backend
	RoleRecipe = "recipe" // custom recipe generator
	RoleRecord = "record" // vision extraction for the record flow
)

// GeneratedRecipe is content a backend wants persisted to the content
// store for later retrieval.
type GeneratedRecipe struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Reply is one backend's answer to a processed event. Everything beyond
// Messages is optional side-channel state the orchestrator harvests.
type Reply struct {
	Messages        []line.Message    `json:"messages"`
	ConversationID  string            `json:"conversation_id,omitempty"`
	GeneratedRecipe *GeneratedRecipe  `json:"generated_recipe_to_store,omitempty"`
	RecipeSlots     map[string]string `json:"recipe_slots,omitempty"`
	AnalysisText    string            `json:"analysis_text,omitempty"`
	GeneratedImages []string          `json:"generated_images,omitempty"`
}

type processRequest struct {
	UserID         string     `json:"user_id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Event          line.Event `json:"event"`
	// Images carries downloaded image bytes for image events; backends
	// have no channel credentials of their own.
	Images [][]byte `json:"images,omitempty"`
}

// Backend is one worker service exposing the process_message contract.
type Backend struct {
	Name string
	Role string

	url  string
	key  string
	http *transport.Client
}

// NewBackend wires a backend client onto a shared transport.
func NewBackend(name, role, url, apiKey string, hc *transport.Client) *Backend {
	return &Backend{Name: name, Role: role, url: url, key: apiKey, http: hc}
}

func (b *Backend) headers() map[string]string {
	h := map[string]string{}
	if b.key != "" {
		h["Authorization"] = "Bearer " + b.key
	}
	return h
}

// Process sends one event and decodes the backend's reply.
func (b *Backend) Process(ctx context.Context, conversationID string, ev line.Event, images [][]byte) (*Reply, error) {
	payload, err := json.Marshal(processRequest{
		UserID:         ev.UserID,
		ConversationID: conversationID,
		Event:          ev,
		Images:         images,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	body, err := b.http.PostJSON(ctx, b.url+"/api/process_message", b.headers(), payload)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", b.Name, err)
	}

	var reply Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("backend %s: decode reply: %w", b.Name, err)
	}
	return &reply, nil
}

// Health probes the backend's health endpoint.
func (b *Backend) Health(ctx context.Context) error {
	if _, err := b.http.Get(ctx, b.url+"/health", b.headers()); err != nil {
		return fmt.Errorf("backend %s health: %w", b.Name, err)
	}
	return nil
}
