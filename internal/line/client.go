package line

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/pochenphys/Group-Project/internal/transport"
)

const (
	defaultAPIBase  = "https://api.line.me"
	defaultDataBase = "https://api-data.line.me"

	// maxReplyMessages is the platform cap per reply or push call.
	maxReplyMessages = 5
)

// Client talks to the LINE Messaging API. Replies and content downloads
// run on the persistent retry policy; pushes use the short one and are
// paced so notification bursts do not trip platform rate limits.
type Client struct {
	token    string
	reply    *transport.Client
	push     *transport.Client
	apiBase  string
	dataBase string
	limiter  *rate.Limiter
}

// NewClient builds a Client with production policies.
func NewClient(token string) *Client {
	return &Client{
		token:    token,
		reply:    transport.New(transport.ReplyPolicy(), 30*time.Second),
		push:     transport.New(transport.PushPolicy(), 15*time.Second),
		apiBase:  defaultAPIBase,
		dataBase: defaultDataBase,
		limiter:  rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.token}
}

// Reply answers a webhook event through its one-shot reply token. Message
// lists over the platform cap are truncated here so no caller has to care.
func (c *Client) Reply(ctx context.Context, replyToken string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) > maxReplyMessages {
		slog.Warn("truncating reply", "have", len(msgs), "cap", maxReplyMessages)
		msgs = msgs[:maxReplyMessages]
	}
	payload, err := json.Marshal(map[string]any{
		"replyToken": replyToken,
		"messages":   msgs,
	})
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if _, err := c.reply.PostJSON(ctx, c.apiBase+"/v2/bot/message/reply", c.headers(), payload); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// Push sends messages outside the reply window, paced by the limiter.
// Lists over the cap are split into successive pushes.
func (c *Client) Push(ctx context.Context, to string, msgs []Message) error {
	for len(msgs) > 0 {
		batch := msgs
		if len(batch) > maxReplyMessages {
			batch = batch[:maxReplyMessages]
		}
		msgs = msgs[len(batch):]

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("push pacing: %w", err)
		}
		payload, err := json.Marshal(map[string]any{
			"to":       to,
			"messages": batch,
		})
		if err != nil {
			return fmt.Errorf("encode push: %w", err)
		}
		if _, err := c.push.PostJSON(ctx, c.apiBase+"/v2/bot/message/push", c.headers(), payload); err != nil {
			return fmt.Errorf("push: %w", err)
		}
	}
	return nil
}

// PushText is the one-line form of Push.
func (c *Client) PushText(ctx context.Context, to, text string) error {
	return c.Push(ctx, to, []Message{TextMessage(text)})
}

// ReplyOrPush tries the reply token first and falls back to a push when
// the token is spent or the reply call fails outright.
func (c *Client) ReplyOrPush(ctx context.Context, replyToken, userID string, msgs []Message) error {
	if replyToken != "" {
		err := c.Reply(ctx, replyToken, msgs)
		if err == nil {
			return nil
		}
		slog.Warn("reply failed, falling back to push", "user", userID, "error", err)
	}
	return c.Push(ctx, userID, msgs)
}

// DisplayName fetches the user's profile display name. Lookup failures
// degrade to an empty name; callers substitute a generic greeting.
func (c *Client) DisplayName(ctx context.Context, userID string) string {
	body, err := c.push.Get(ctx, c.apiBase+"/v2/bot/profile/"+userID, c.headers())
	if err != nil {
		slog.Debug("profile lookup failed", "user", userID, "error", err)
		return ""
	}
	var profile struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return ""
	}
	return profile.DisplayName
}

// DownloadContent fetches message binary content. Oversized images are
// downscaled before they travel any further.
func (c *Client) DownloadContent(ctx context.Context, messageID string) ([]byte, error) {
	body, err := c.reply.Get(ctx, c.dataBase+"/v2/bot/message/"+messageID+"/content", c.headers())
	if err != nil {
		return nil, fmt.Errorf("download content %s: %w", messageID, err)
	}
	return NormalizeImage(body), nil
}
