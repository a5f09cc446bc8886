package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pochenphys/Group-Project/internal/dispatch"
	"github.com/pochenphys/Group-Project/internal/line"
	"github.com/pochenphys/Group-Project/internal/router"
)

const recipeSelectPrefix = "recipe_select="

var markdownHeaderRe = regexp.MustCompile(`(?m)^#{1,6}\s*`)

func stripMarkdownHeaders(s string) string {
	return markdownHeaderRe.ReplaceAllString(s, "")
}

func (e *Engine) handlePostback(ctx context.Context, ev line.Event) {
	e.deliver(ctx, ev, e.postbackMessages(ctx, ev))
}

// postbackMessages resolves a postback to its reply. Inventory postbacks
// go to the state machine; recipe selection and feedback are answered
// here from the side-channel stores.
func (e *Engine) postbackMessages(ctx context.Context, ev line.Event) []line.Message {
	if msgs, handled := e.router.HandlePostback(ctx, ev.UserID, ev.Postback); handled {
		return msgs
	}

	if strings.HasPrefix(ev.Postback, recipeSelectPrefix) {
		return e.recipeSelect(ev.UserID, strings.TrimPrefix(ev.Postback, recipeSelectPrefix))
	}

	params := line.ParsePostbackData(ev.Postback)
	switch params["action"] {
	case "cook":
		return e.cookFeedback(ev.UserID, params["id"])
	case "dislike", "recommend":
		return e.recommend(ctx, ev)
	default:
		slog.Debug("unhandled postback", "user", ev.UserID, "data", ev.Postback)
		return nil
	}
}

// recipeSelect expands one numbered dish from the stored slots into its
// full recipe text plus feedback buttons.
func (e *Engine) recipeSelect(userID, rawNum string) []line.Message {
	num, err := strconv.Atoi(rawNum)
	if err != nil {
		return []line.Message{line.TextMessage("處理請求時發生錯誤")}
	}

	slots, ok := e.slots.Get(userID)
	if !ok {
		return []line.Message{line.TextMessage("食譜數據已過期，請重新上傳圖片")}
	}
	recipe, ok := slots[fmt.Sprintf("dish_%d", num)]
	if !ok {
		return []line.Message{line.TextMessage(fmt.Sprintf("找不到編號 %d 的食譜", num))}
	}

	full := stripMarkdownHeaders(recipe)
	if analysis, ok := e.analysis.Get(userID); ok && analysis != "" {
		full = analysis + "\n" + strings.Repeat("=", 25) + "\n" + full
	}

	// Deterministic id so the cook button can reference this exact recipe.
	recipeID := fmt.Sprintf("gen_%s_%d", userID, num)
	e.persistRecipe(userID, dispatch.GeneratedRecipe{
		ID:    recipeID,
		Title: fmt.Sprintf("食譜 %d", num),
		Text:  full,
	})

	return []line.Message{
		line.TextMessage(full),
		feedbackFlex(userID, recipeID),
	}
}

func (e *Engine) cookFeedback(userID, recipeID string) []line.Message {
	if e.contentStore.Enabled() && recipeID != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := e.contentStore.Like(ctx, userID, recipeID); err != nil {
				slog.Warn("like feedback failed", "user", userID, "recipe", recipeID, "error", err)
			}
		}()
	}
	return []line.Message{line.TextMessage("👨‍🍳 太棒了！已將您的偏好記錄下來！")}
}

// recommend forwards the feedback postback to the recipe backends and
// merges whatever they suggest.
func (e *Engine) recommend(ctx context.Context, ev line.Event) []line.Message {
	targets := e.byRole(dispatch.RoleAI, dispatch.RoleRecipe)
	if len(targets) == 0 {
		return e.recommendFallback(ev.UserID)
	}

	e.maybeSendWait(ctx, ev.UserID)
	res := e.dispatcher.Dispatch(ctx, targets, ev, nil)
	msgs := append(res.Messages, e.harvest(ev.UserID, res.Replies)...)
	if len(msgs) == 0 {
		return e.recommendFallback(ev.UserID)
	}
	return msgs
}

// recommendFallback answers a fan-out that produced nothing. A user with
// no active mode gets the function menu back; a user mid-flow gets the
// unavailable notice.
func (e *Engine) recommendFallback(userID string) []line.Message {
	if e.router.Mode(userID) == router.ModeNone {
		return []line.Message{router.DefaultMenu()}
	}
	return []line.Message{line.TextMessage("推薦服務暫時無法使用，請稍後再試！")}
}

// feedbackFlex is the three-button bubble attached under an expanded
// recipe: cook, dislike, recommend another.
func feedbackFlex(userID, recipeID string) line.Message {
	button := func(style, color, label, data string) map[string]any {
		b := map[string]any{
			"type":  "button",
			"style": style,
			"action": map[string]any{
				"type":  "postback",
				"label": label,
				"data":  data,
			},
		}
		if color != "" {
			b["color"] = color
		}
		return b
	}

	contents := map[string]any{
		"type": "bubble",
		"body": map[string]any{
			"type":   "box",
			"layout": "vertical",
			"contents": []any{
				map[string]any{
					"type":   "text",
					"text":   "🤔 覺得這道菜如何？",
					"weight": "bold",
					"size":   "md",
					"align":  "center",
				},
				map[string]any{
					"type":    "box",
					"layout":  "vertical",
					"margin":  "xl",
					"spacing": "sm",
					"contents": []any{
						map[string]any{
							"type":    "box",
							"layout":  "horizontal",
							"spacing": "md",
							"contents": []any{
								button("primary", "#22cc44", "想煮這道菜", "action=cook&id="+recipeID),
								button("secondary", "#e0e0e0", "不想煮這...", "action=dislike&id="+recipeID),
							},
						},
						map[string]any{
							"type":   "button",
							"style":  "link",
							"height": "sm",
							"margin": "md",
							"action": map[string]any{
								"type":  "postback",
								"label": "🎲 再推薦一道菜",
								"data":  "action=recommend&user_id=" + userID,
							},
						},
					},
				},
			},
		},
	}
	return line.FlexMessage("請給予回饋", contents)
}
