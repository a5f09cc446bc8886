// Package router holds the per-user function state machine that decides
// what a text message means before anything reaches a worker backend.
package router

import "strings"

// Mode is a user's active function mode. View never persists: listing is
// one-shot and drops straight back to ModeNone.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeRecipe
	ModeRecord
	ModeView
	ModeDelete
)

func (m Mode) String() string {
	switch m {
	case ModeRecipe:
		return "recipe"
	case ModeRecord:
		return "record"
	case ModeView:
		return "view"
	case ModeDelete:
		return "delete"
	default:
		return "none"
	}
}

// Label is the user-facing name of a mode.
func (m Mode) Label() string {
	switch m {
	case ModeRecipe:
		return "食譜"
	case ModeRecord:
		return "記錄"
	case ModeView:
		return "查看"
	case ModeDelete:
		return "刪除"
	default:
		return ""
	}
}

// Function is a detected text command.
type Function string

const (
	FunctionRecipe Function = "recipe"
	FunctionRecord Function = "record"
	FunctionView   Function = "view"
	FunctionDelete Function = "delete"
	FunctionHelp   Function = "help"
	FunctionExit   Function = "exit"
)

// functionKeywords maps each function to its synonym set. Matching is
// case-insensitive substring containment.
var functionKeywords = map[Function][]string{
	FunctionRecipe: {"食譜功能", "食譜", "recipe", "開始食譜", "使用食譜", "食譜模式"},
	FunctionRecord: {"記錄功能", "記錄", "record", "開始記錄", "使用記錄", "記錄模式"},
	FunctionView:   {"查看功能", "查看", "view", "查詢", "查詢功能", "我的記錄", "記錄查詢"},
	FunctionDelete: {"刪除功能", "刪除", "delete", "消耗", "消耗功能", "使用"},
	FunctionHelp:   {"幫助", "help", "功能", "選單", "menu", "說明"},
	FunctionExit:   {"退出", "exit", "結束", "取消", "cancel"},
}

// detectionOrder resolves overlapping synonym sets: "使用食譜" must read
// as recipe even though "使用" alone means delete, and "功能" alone means
// help even though every entry keyword contains it.
var detectionOrder = []Function{
	FunctionExit,
	FunctionRecipe,
	FunctionRecord,
	FunctionView,
	FunctionDelete,
	FunctionHelp,
}

// DetectFunction scans text for a function keyword. The first function in
// detection order with any matching synonym wins.
func DetectFunction(text string) (Function, bool) {
	lower := strings.ToLower(text)
	for _, fn := range detectionOrder {
		for _, kw := range functionKeywords[fn] {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return fn, true
			}
		}
	}
	return "", false
}
