package router

import "testing"

func TestDetectFunction(t *testing.T) {
	cases := []struct {
		text    string
		want    Function
		matched bool
	}{
		{"食譜功能", FunctionRecipe, true},
		{"我想要食譜", FunctionRecipe, true},
		{"RECIPE", FunctionRecipe, true},
		{"記錄功能", FunctionRecord, true},
		{"record", FunctionRecord, true},
		{"查看", FunctionView, true},
		{"我的記錄", FunctionView, true},
		{"刪除功能", FunctionDelete, true},
		{"消耗", FunctionDelete, true},
		{"幫助", FunctionHelp, true},
		{"MENU", FunctionHelp, true},
		{"退出", FunctionExit, true},
		{"cancel", FunctionExit, true},
		{"今天天氣如何", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, ok := DetectFunction(tc.text)
			if ok != tc.matched || got != tc.want {
				t.Errorf("DetectFunction(%q) = %q, %v; want %q, %v", tc.text, got, ok, tc.want, tc.matched)
			}
		})
	}
}

func TestDetectFunctionPrecedence(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Function
	}{
		// "使用" alone means delete, but the longer recipe synonym wins.
		{"use-recipe over delete", "使用食譜", FunctionRecipe},
		{"use-record over delete", "使用記錄", FunctionRecord},
		// Exit beats everything when combined.
		{"exit over recipe", "取消食譜", FunctionExit},
		{"exit over delete", "結束刪除", FunctionExit},
		// Every entry keyword contains "功能"; help must lose to them.
		{"recipe entry over help", "食譜功能", FunctionRecipe},
		{"delete entry over help", "刪除功能", FunctionDelete},
		{"bare help keyword", "功能", FunctionHelp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DetectFunction(tc.text)
			if !ok || got != tc.want {
				t.Errorf("DetectFunction(%q) = %q, %v; want %q", tc.text, got, ok, tc.want)
			}
		})
	}
}
