package router

import (
	"fmt"
	"time"

	"github.com/pochenphys/Group-Project/internal/line"
	"github.com/pochenphys/Group-Project/internal/pantry"
)

// pageSize is how many records one listing page shows.
const pageSize = 5

var taipei = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}()

func formatStored(t time.Time) string {
	if t.IsZero() {
		return "未指定"
	}
	return t.In(taipei).Format("2006-01-02 15:04:05")
}

// formatElapsed renders how long ago a record was stored.
func formatElapsed(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return "剛剛"
	case d < time.Hour:
		return fmt.Sprintf("%d 分鐘前", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d 小時前", int(d.Hours()))
	default:
		return fmt.Sprintf("%d 天前", int(d.Hours())/24)
	}
}

func formatQuantity(q *float64) string {
	if q == nil {
		return "未指定"
	}
	return fmt.Sprintf("%g", *q)
}

func maxPage(total int) int {
	mp := (total + pageSize - 1) / pageSize
	if mp < 1 {
		mp = 1
	}
	return mp
}

// clampPage normalizes a requested page into the valid range.
func clampPage(page, total int) int {
	if page < 1 {
		return 1
	}
	if mp := maxPage(total); page > mp {
		return mp
	}
	return page
}

func pageBounds(page, total int) (int, int) {
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}

func footerNote(page, total int) string {
	if total > pageSize {
		return fmt.Sprintf("（第 %d/%d 頁，共 %d 筆）", page, maxPage(total), total)
	}
	return fmt.Sprintf("（共 %d 筆）", total)
}

func pagerButtons(action string, page, total int) []map[string]any {
	var buttons []map[string]any
	if page > 1 {
		buttons = append(buttons, map[string]any{
			"type":   "button",
			"style":  "secondary",
			"height": "sm",
			"action": map[string]any{
				"type":  "postback",
				"label": "上一頁",
				"data":  fmt.Sprintf("action=%s&page=%d", action, page-1),
			},
		})
	}
	if _, end := pageBounds(page, total); end < total {
		buttons = append(buttons, map[string]any{
			"type":   "button",
			"style":  "primary",
			"height": "sm",
			"action": map[string]any{
				"type":  "postback",
				"label": "下一頁",
				"data":  fmt.Sprintf("action=%s&page=%d", action, page+1),
			},
		})
	}
	return buttons
}

func listBubble(title, subtitle, hint string, items []map[string]any, footer string, pager []map[string]any) map[string]any {
	contents := []any{
		map[string]any{"type": "text", "text": title, "weight": "bold", "size": "lg"},
		map[string]any{"type": "text", "text": subtitle, "size": "sm", "color": "#666666", "wrap": true},
		map[string]any{"type": "separator", "margin": "md"},
	}
	for _, it := range items {
		contents = append(contents, it)
	}
	if footer != "" {
		contents = append(contents, map[string]any{"type": "text", "text": footer, "size": "xs", "color": "#999999", "wrap": true})
	}
	if len(pager) > 0 {
		contents = append(contents, map[string]any{"type": "box", "layout": "horizontal", "spacing": "md", "contents": pager})
	}
	contents = append(contents, map[string]any{"type": "text", "text": hint, "size": "xs", "color": "#999999", "wrap": true})

	return map[string]any{
		"type": "bubble",
		"size": "giga",
		"body": map[string]any{
			"type":     "box",
			"layout":   "vertical",
			"spacing":  "md",
			"contents": contents,
		},
	}
}

// buildViewListFlex renders the read-only record listing with elapsed-time
// annotations.
func buildViewListFlex(username string, records []pantry.Record, page int) line.Message {
	total := len(records)
	page = clampPage(page, total)
	start, end := pageBounds(page, total)
	now := time.Now()

	items := make([]map[string]any, 0, end-start)
	for _, rec := range records[start:end] {
		subtitle := "入庫時間：" + formatStored(rec.StoredAt)
		if elapsed := formatElapsed(rec.StoredAt, now); elapsed != "" {
			subtitle += "（" + elapsed + "）"
		}
		items = append(items, map[string]any{
			"type":    "box",
			"layout":  "vertical",
			"spacing": "xs",
			"margin":  "md",
			"contents": []any{
				map[string]any{
					"type":   "box",
					"layout": "horizontal",
					"contents": []any{
						map[string]any{"type": "text", "text": rec.Name, "weight": "bold", "size": "md", "wrap": true, "flex": 1},
						map[string]any{"type": "text", "text": "x " + formatQuantity(rec.Quantity), "size": "sm", "color": "#666666", "align": "end", "gravity": "center", "flex": 0},
					},
				},
				map[string]any{"type": "text", "text": subtitle, "size": "xs", "color": "#999999", "wrap": true},
				map[string]any{"type": "separator", "margin": "md"},
			},
		})
	}

	bubble := listBubble(
		"📋 查看功能",
		fmt.Sprintf("%s 的記錄（共 %d 筆）", username, total),
		"提示：輸入「記錄功能 / 刪除功能」可切換模式",
		items,
		footerNote(page, total),
		pagerButtons("view_page", page, total),
	)
	return line.FlexMessage("查看記錄", bubble)
}

// buildDeleteListFlex renders the removal listing with one-click delete
// buttons. Item titles carry the global index the numbered grammar
// resolves against.
func buildDeleteListFlex(username string, records []pantry.Record, page int) line.Message {
	total := len(records)
	page = clampPage(page, total)
	start, end := pageBounds(page, total)

	items := make([]map[string]any, 0, end-start)
	for i, rec := range records[start:end] {
		items = append(items, map[string]any{
			"type":    "box",
			"layout":  "vertical",
			"spacing": "xs",
			"margin":  "md",
			"contents": []any{
				map[string]any{
					"type":   "box",
					"layout": "horizontal",
					"contents": []any{
						map[string]any{"type": "text", "text": fmt.Sprintf("%d. %s", start+i+1, rec.Name), "weight": "bold", "size": "md", "wrap": true, "flex": 1},
						map[string]any{
							"type":   "button",
							"style":  "secondary",
							"height": "sm",
							"action": map[string]any{
								"type":  "postback",
								"label": "刪除",
								"data":  fmt.Sprintf("action=delete_record&id=%d&page=%d", rec.ID, page),
							},
						},
					},
				},
				map[string]any{"type": "text", "text": fmt.Sprintf("x %s　入庫時間：%s", formatQuantity(rec.Quantity), formatStored(rec.StoredAt)), "size": "xs", "color": "#999999", "wrap": true},
				map[string]any{"type": "separator", "margin": "md"},
			},
		})
	}

	bubble := listBubble(
		"🗑️ 刪除功能",
		fmt.Sprintf("📋 %s 的記錄（共 %d 筆）", username, total),
		"提示：也可直接輸入「退出」結束刪除模式",
		items,
		footerNote(page, total),
		pagerButtons("delete_page", page, total),
	)
	return line.FlexMessage("刪除記錄", bubble)
}

// DefaultMenu is the carousel shown when nothing else produced a message.
func DefaultMenu() line.Message {
	columns := []line.CarouselColumn{
		{
			Title: "食譜功能",
			Text:  "上傳食物圖片，獲得詳細食譜和烹飪建議",
			Actions: []line.Action{
				line.MessageAction("啟用食譜功能", "食譜功能"),
			},
		},
		{
			Title: "記錄功能",
			Text:  "上傳食物圖片，記錄食物名稱和入庫時間",
			Actions: []line.Action{
				line.MessageAction("啟用記錄功能", "記錄功能"),
			},
		},
		{
			Title: "庫存管理",
			Text:  "查看記錄或記錄食品消耗",
			Actions: []line.Action{
				line.MessageAction("查看記錄", "查看功能"),
			},
		},
	}
	return line.CarouselMessage("功能選擇", columns)
}
