package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pochenphys/Group-Project/internal/line"
	"github.com/pochenphys/Group-Project/internal/pantry"
	"github.com/pochenphys/Group-Project/internal/store"
)

// Inventory is the slice of the pantry store the router needs.
type Inventory interface {
	ListByOwner(ctx context.Context, owner string) ([]pantry.Record, error)
	DeleteByID(ctx context.Context, owner string, id int64) (pantry.Record, error)
	DecrementByID(ctx context.Context, owner string, id int64, amount float64) (pantry.DeductResult, error)
	DeductOldestFirst(ctx context.Context, owner, name string, amount float64) (pantry.DeductResult, error)
}

// ProfileResolver looks up a user's display name; empty on failure.
type ProfileResolver interface {
	DisplayName(ctx context.Context, userID string) string
}

// IndexedRecord is one entry of the index map a numbered deletion
// resolves against. It snapshots what the user last saw, not the live row.
type IndexedRecord struct {
	ID       int64
	Name     string
	Quantity *float64
}

// Router is the per-user function state machine. Modes expire on their
// own so an abandoned conversation falls back to the initial state.
type Router struct {
	inventory Inventory
	profiles  ProfileResolver
	modes     *store.TTL[Mode]
	deleteIdx *store.TTL[map[int]IndexedRecord]
}

// New builds a Router. modeTTL bounds how long an untouched mode
// survives; the delete index map lives on the same clock.
func New(inv Inventory, profiles ProfileResolver, modeTTL time.Duration) *Router {
	return &Router{
		inventory: inv,
		profiles:  profiles,
		modes:     store.NewTTL[Mode](modeTTL),
		deleteIdx: store.NewTTL[map[int]IndexedRecord](modeTTL),
	}
}

// Mode returns the user's current function mode.
func (r *Router) Mode(userID string) Mode {
	m, ok := r.modes.Get(userID)
	if !ok {
		return ModeNone
	}
	return m
}

func (r *Router) setMode(userID string, m Mode) {
	if m == ModeNone {
		r.modes.Delete(userID)
		return
	}
	r.modes.Set(userID, m)
}

func (r *Router) username(ctx context.Context, userID string) string {
	if name := r.profiles.DisplayName(ctx, userID); name != "" {
		return name
	}
	return "未知用戶"
}

// HandleText routes one text message through the evaluation order:
// exit first, then function keywords, then mode-specific input, then the
// unknown fallback. It always produces at least one message.
func (r *Router) HandleText(ctx context.Context, userID, text string) []line.Message {
	text = strings.TrimSpace(text)

	if text == "主頁" || strings.EqualFold(text, "home") {
		return []line.Message{DefaultMenu()}
	}

	fn, matched := DetectFunction(text)

	if matched && fn == FunctionExit {
		return r.handleExit(userID)
	}
	if matched {
		switch fn {
		case FunctionRecipe:
			return r.enableRecipe(userID)
		case FunctionRecord:
			return r.enableRecord(userID)
		case FunctionView:
			return r.handleView(ctx, userID, 1)
		case FunctionDelete:
			return r.enableDelete(ctx, userID, 1)
		case FunctionHelp:
			return []line.Message{line.TextMessage(helpText)}
		}
	}

	switch r.Mode(userID) {
	case ModeDelete:
		return r.handleConsumption(ctx, userID, text)
	case ModeRecipe, ModeRecord:
		return []line.Message{line.TextMessage(fmt.Sprintf(
			"您目前在「%s」模式下。\n\n請上傳圖片以使用該功能，或輸入其他功能關鍵字切換功能。\n輸入「退出」可結束當前功能模式。",
			r.Mode(userID).Label()))}
	}

	return []line.Message{line.TextMessage("❓ 未識別的功能指令。\n\n請輸入「幫助」查看可用功能列表。")}
}

func (r *Router) enableRecipe(userID string) []line.Message {
	r.setMode(userID, ModeRecipe)
	return []line.Message{line.TextMessage(
		"🍳 食譜功能已啟用！\n\n" +
			"📸 請上傳食材或食物圖片，我會為您：\n" +
			"• 分析圖片中的食材\n" +
			"• 推薦可以製作的料理\n" +
			"• 提供詳細食譜和烹飪建議\n\n" +
			"請直接上傳圖片即可開始！\n\n" +
			"💡 提示：\n" +
			"• 輸入其他功能關鍵字可切換功能\n" +
			"• 輸入「退出」可結束食譜功能")}
}

func (r *Router) enableRecord(userID string) []line.Message {
	r.setMode(userID, ModeRecord)
	return []line.Message{line.TextMessage(
		"📝 記錄功能已啟用！\n\n" +
			"📸 請上傳您想要記錄的食物圖片，我會為您：\n" +
			"• 記錄食物名稱\n" +
			"• 記錄入庫時間\n" +
			"• 保存到資料庫\n\n" +
			"請直接上傳食物圖片即可開始記錄！\n\n" +
			"💡 提示：\n" +
			"• 輸入其他功能關鍵字可切換功能\n" +
			"• 輸入「退出」可結束記錄功能")}
}

// handleView lists records and reverts to the initial state: view is a
// one-shot action, not a persistent mode.
func (r *Router) handleView(ctx context.Context, userID string, page int) []line.Message {
	defer r.setMode(userID, ModeNone)

	username := r.username(ctx, userID)
	records, err := r.inventory.ListByOwner(ctx, userID)
	if err != nil {
		slog.Error("view listing failed", "user", userID, "error", err)
		return []line.Message{line.TextMessage("查詢記錄時發生錯誤，請稍後再試。")}
	}
	if len(records) == 0 {
		return []line.Message{line.TextMessage(fmt.Sprintf(
			"📋 %s 的記錄\n\n目前沒有任何記錄。\n使用「記錄功能」來記錄食物吧！", username))}
	}
	return []line.Message{buildViewListFlex(username, records, page)}
}

// enableDelete switches to delete mode and rebuilds the numbered index
// map from the freshly listed records.
func (r *Router) enableDelete(ctx context.Context, userID string, page int) []line.Message {
	r.setMode(userID, ModeDelete)

	username := r.username(ctx, userID)
	records, err := r.inventory.ListByOwner(ctx, userID)
	if err != nil {
		slog.Error("delete listing failed", "user", userID, "error", err)
		return []line.Message{line.TextMessage("啟用刪除功能時發生錯誤，請稍後再試。")}
	}
	if len(records) == 0 {
		return []line.Message{line.TextMessage(fmt.Sprintf(
			"🗑️ 刪除功能已啟用！\n\n📋 %s 的記錄\n\n目前沒有任何記錄。\n使用「記錄功能」來記錄食物吧！", username))}
	}

	r.rebuildIndex(userID, records)
	return []line.Message{buildDeleteListFlex(username, records, page)}
}

func (r *Router) rebuildIndex(userID string, records []pantry.Record) {
	idx := make(map[int]IndexedRecord, len(records))
	for i, rec := range records {
		idx[i+1] = IndexedRecord{ID: rec.ID, Name: rec.Name, Quantity: rec.Quantity}
	}
	r.deleteIdx.Set(userID, idx)
}

func (r *Router) handleExit(userID string) []line.Message {
	mode := r.Mode(userID)
	if mode == ModeNone {
		return []line.Message{line.TextMessage("您目前沒有啟用任何功能模式。\n\n輸入「幫助」查看可用功能。")}
	}
	r.setMode(userID, ModeNone)
	r.deleteIdx.Delete(userID)
	return []line.Message{line.TextMessage(fmt.Sprintf(
		"已退出 %s 功能模式。\n\n輸入「幫助」查看可用功能。", mode.Label()))}
}

// handleConsumption interprets delete-mode text: first the numbered
// grammar, then free-text name+amount lines.
func (r *Router) handleConsumption(ctx context.Context, userID, text string) []line.Message {
	if del, ok := parseIndexedDelete(text); ok {
		return r.consumeByIndex(ctx, userID, del)
	}

	items := parseConsumeLines(text)
	if len(items) == 0 {
		return []line.Message{line.TextMessage(
			"❌ 無法解析消耗信息。\n\n" +
				"刪除方式：\n" +
				"1️⃣ 按編號刪除：輸入編號（例如：3）\n" +
				"2️⃣ 按食品名稱刪除：輸入食品名稱 數量（例如：蘋果 2個）")}
	}

	var lines []string
	allOK := true
	for _, item := range items {
		res, err := r.inventory.DeductOldestFirst(ctx, userID, item.Name, item.Amount)
		if err != nil {
			slog.Error("deduction failed", "user", userID, "name", item.Name, "error", err)
			lines = append(lines, fmt.Sprintf("❌ %s - 處理失敗", item.Name))
			allOK = false
			continue
		}
		if res.Deleted == 0 && res.Updated == 0 {
			lines = append(lines, fmt.Sprintf("❌ %s - 找不到記錄", item.Name))
			allOK = false
			continue
		}
		msg := fmt.Sprintf("✅ %s - 扣除 %g（刪除 %d 筆，更新 %d 筆）", item.Name, res.Consumed, res.Deleted, res.Updated)
		if res.Partial() {
			msg += fmt.Sprintf("\n  ⚠️ 警告：還需要扣除 %g，但庫存不足", res.Remainder)
			allOK = false
		}
		lines = append(lines, msg)
	}

	header := "✅ 消耗記錄完成！\n\n"
	if !allOK {
		header = "⚠️ 消耗記錄處理完成（部分項目可能有問題）\n\n"
	}
	return []line.Message{line.TextMessage(
		header + strings.Join(lines, "\n") + "\n\n輸入「查看功能」查看更新後的記錄。")}
}

func (r *Router) consumeByIndex(ctx context.Context, userID string, del indexedDelete) []line.Message {
	idx, ok := r.deleteIdx.Get(userID)
	if !ok {
		return []line.Message{line.TextMessage(
			"❌ 找不到記錄映射。\n\n請重新輸入「刪除功能」查看記錄列表。")}
	}
	rec, ok := idx[del.Index]
	if !ok {
		return []line.Message{line.TextMessage(fmt.Sprintf(
			"❌ 找不到編號 %d 的記錄。\n\n請重新輸入「刪除功能」查看記錄列表。", del.Index))}
	}

	if del.Amount == nil {
		_, err := r.inventory.DeleteByID(ctx, userID, rec.ID)
		if errors.Is(err, pantry.ErrNotFound) {
			return []line.Message{line.TextMessage(fmt.Sprintf(
				"編號 %d 的記錄（%s）已被刪除。", del.Index, rec.Name))}
		}
		if err != nil {
			slog.Error("indexed delete failed", "user", userID, "record", rec.ID, "error", err)
			return []line.Message{line.TextMessage("處理消耗信息時發生錯誤，請稍後再試。")}
		}
		return []line.Message{line.TextMessage(fmt.Sprintf(
			"✅ 已刪除編號 %d 的記錄：%s", del.Index, rec.Name))}
	}

	if rec.Quantity == nil {
		return []line.Message{line.TextMessage(fmt.Sprintf(
			"編號 %d 的記錄（%s）未記錄數量，無法部分扣除。\n輸入編號（不帶數量）可刪除整筆記錄。", del.Index, rec.Name))}
	}

	res, err := r.inventory.DecrementByID(ctx, userID, rec.ID, *del.Amount)
	if errors.Is(err, pantry.ErrNotFound) {
		return []line.Message{line.TextMessage(fmt.Sprintf(
			"編號 %d 的記錄（%s）已被刪除。", del.Index, rec.Name))}
	}
	if err != nil {
		slog.Error("indexed decrement failed", "user", userID, "record", rec.ID, "error", err)
		return []line.Message{line.TextMessage("處理消耗信息時發生錯誤，請稍後再試。")}
	}
	if res.Deleted > 0 {
		return []line.Message{line.TextMessage(fmt.Sprintf(
			"✅ 已刪除編號 %d 的記錄：%s（數量 %g 已全部扣除）", del.Index, rec.Name, res.Consumed))}
	}
	// Quantities come from the transaction, not the listing snapshot; the
	// record may have changed since the index map was rendered.
	return []line.Message{line.TextMessage(fmt.Sprintf(
		"✅ 已更新編號 %d 的記錄：%s（%g -> %g）", del.Index, rec.Name, res.Consumed+res.Remaining, res.Remaining))}
}

// ImageGuidance is the reply for an image arriving with no mode active.
func ImageGuidance() line.Message {
	return line.TextMessage(
		"📸 您上傳了圖片，但尚未啟用任何功能。\n\n" +
			"請先輸入「食譜功能」或「記錄功能」來啟用對應功能，\n" +
			"或輸入「幫助」查看所有可用功能。")
}

// UnsupportedMedia is the reply for video, audio and file messages.
func UnsupportedMedia() line.Message {
	return line.TextMessage("目前不支援此格式，請上傳圖片。")
}

// HandlePostback serves the listing postbacks this service mints itself.
// The second return is false when the payload belongs to a backend flow.
func (r *Router) HandlePostback(ctx context.Context, userID, data string) ([]line.Message, bool) {
	kv := line.ParsePostbackData(data)
	switch kv["action"] {
	case "delete_record":
		id, err := strconv.ParseInt(kv["id"], 10, 64)
		if err != nil {
			return []line.Message{line.TextMessage("處理請求時發生錯誤，請稍後再試。")}, true
		}
		page, _ := strconv.Atoi(kv["page"])
		return r.deleteRecordPostback(ctx, userID, id, page), true
	case "delete_page":
		page, _ := strconv.Atoi(kv["page"])
		return r.enableDelete(ctx, userID, page), true
	case "view_page":
		page, _ := strconv.Atoi(kv["page"])
		return r.handleView(ctx, userID, page), true
	}
	return nil, false
}

// deleteRecordPostback removes one record from its flex button and
// refreshes the listing on the same page. A second tap on the same
// button lands on ErrNotFound and reads as already removed.
func (r *Router) deleteRecordPostback(ctx context.Context, userID string, id int64, page int) []line.Message {
	deleted, err := r.inventory.DeleteByID(ctx, userID, id)
	var head line.Message
	switch {
	case errors.Is(err, pantry.ErrNotFound):
		head = line.TextMessage("該筆記錄已被刪除。")
	case err != nil:
		slog.Error("postback delete failed", "user", userID, "record", id, "error", err)
		return []line.Message{line.TextMessage("刪除記錄時發生錯誤，請稍後再試。")}
	default:
		head = line.TextMessage(fmt.Sprintf("✅ 已刪除：%s", deleted.Name))
	}

	username := r.username(ctx, userID)
	records, listErr := r.inventory.ListByOwner(ctx, userID)
	if listErr != nil {
		slog.Error("refresh after delete failed", "user", userID, "error", listErr)
		return []line.Message{head}
	}
	if len(records) == 0 {
		r.deleteIdx.Delete(userID)
		return []line.Message{head, line.TextMessage("目前沒有任何記錄。\n使用「記錄功能」來記錄食物吧！")}
	}
	r.rebuildIndex(userID, records)
	return []line.Message{head, buildDeleteListFlex(username, records, page)}
}

const helpText = "🤖 智慧冰箱助手 - 功能選單\n\n" +
	"🍳 食譜功能 - 輸入「食譜功能」或「食譜」\n" +
	"   上傳食物圖片，獲得詳細食譜和烹飪建議\n\n" +
	"📝 記錄功能 - 輸入「記錄功能」或「記錄」\n" +
	"   上傳食物圖片，記錄食物名稱和入庫時間\n\n" +
	"🔍 查看功能 - 輸入「查看功能」或「查看」\n" +
	"   查看您的食物記錄列表\n\n" +
	"🗑️ 刪除功能 - 輸入「刪除功能」或「刪除」\n" +
	"   記錄食品消耗，從最舊的記錄開始扣除\n\n" +
	"❓ 幫助 - 輸入「幫助」或「help」\n" +
	"   查看此功能列表\n\n" +
	"🚪 退出 - 輸入「退出」\n" +
	"   結束當前功能模式，返回初始狀態"
