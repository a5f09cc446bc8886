package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/pochenphys/Group-Project/internal/transport"
)

// ContentStore is the retrieval service that archives generated recipes
// and images. Every call is best-effort; callers log and move on.
type ContentStore struct {
	url string
	hc  *transport.Client
}

// NewContentStore returns nil when no URL is configured; a nil store is
// safely disabled.
func NewContentStore(url string, hc *transport.Client) *ContentStore {
	if url == "" {
		return nil
	}
	return &ContentStore{url: url, hc: hc}
}

// Enabled reports whether persistence is configured.
func (c *ContentStore) Enabled() bool { return c != nil }

// StoreRecipe archives one generated recipe for later retrieval.
func (c *ContentStore) StoreRecipe(ctx context.Context, userID string, rec GeneratedRecipe) error {
	payload, err := json.Marshal(map[string]any{
		"user_id":   userID,
		"recipe_id": rec.ID,
		"title":     rec.Title,
		"text":      rec.Text,
	})
	if err != nil {
		return fmt.Errorf("encode recipe: %w", err)
	}
	if _, err := c.hc.PostJSON(ctx, c.url+"/api/store_recipe", nil, payload); err != nil {
		return fmt.Errorf("store recipe: %w", err)
	}
	return nil
}

// Like records positive feedback on a stored recipe.
func (c *ContentStore) Like(ctx context.Context, userID, recipeID string) error {
	payload, err := json.Marshal(map[string]any{
		"user_id":   userID,
		"recipe_id": recipeID,
	})
	if err != nil {
		return fmt.Errorf("encode like: %w", err)
	}
	if _, err := c.hc.PostJSON(ctx, c.url+"/api/like_recipe", nil, payload); err != nil {
		return fmt.Errorf("like recipe: %w", err)
	}
	return nil
}

// StoreImage uploads generated image bytes as multipart form data. The
// upload runs on a bare client: the body is streamed, not replayed.
func (c *ContentStore) StoreImage(ctx context.Context, id string, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", id+".png")
	if err != nil {
		return fmt.Errorf("multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("multipart write: %w", err)
	}
	if err := w.WriteField("image_id", id); err != nil {
		return fmt.Errorf("multipart field: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("multipart close: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/store_image", &buf)
	if err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.hc.Bare().Do(req)
	if err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("store image: status %d", resp.StatusCode)
	}
	return nil
}
