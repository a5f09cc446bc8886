package router

import "testing"

func TestParseIndexedDelete(t *testing.T) {
	cases := []struct {
		text       string
		wantIndex  int
		wantAmount *float64
		ok         bool
	}{
		{"3", 3, nil, true},
		{" 12 ", 12, nil, true},
		{"3 1", 3, qtyPtr(1), true},
		{"3 1.5", 3, qtyPtr(1.5), true},
		{"蘋果 2", 0, nil, false},
		{"3 個", 0, nil, false},
		{"3.5", 0, nil, false},
		{"", 0, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, ok := parseIndexedDelete(tc.text)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if got.Index != tc.wantIndex {
				t.Errorf("index = %d, want %d", got.Index, tc.wantIndex)
			}
			switch {
			case tc.wantAmount == nil && got.Amount != nil:
				t.Errorf("amount = %v, want nil", *got.Amount)
			case tc.wantAmount != nil && (got.Amount == nil || *got.Amount != *tc.wantAmount):
				t.Errorf("amount = %v, want %v", got.Amount, *tc.wantAmount)
			}
		})
	}
}

func qtyPtr(v float64) *float64 { return &v }

func TestParseConsumeLines(t *testing.T) {
	t.Run("multi line with units", func(t *testing.T) {
		items := parseConsumeLines("蘋果 2個\n橘子 1個\n牛奶1.5瓶")
		if len(items) != 3 {
			t.Fatalf("items = %+v", items)
		}
		want := []consumeItem{
			{Name: "蘋果", Amount: 2, Unit: "個"},
			{Name: "橘子", Amount: 1, Unit: "個"},
			{Name: "牛奶", Amount: 1.5, Unit: "瓶"},
		}
		for i := range want {
			if items[i] != want[i] {
				t.Errorf("items[%d] = %+v, want %+v", i, items[i], want[i])
			}
		}
	})

	t.Run("no unit", func(t *testing.T) {
		items := parseConsumeLines("egg 3")
		if len(items) != 1 || items[0].Name != "egg" || items[0].Amount != 3 || items[0].Unit != "" {
			t.Errorf("items = %+v", items)
		}
	})

	t.Run("bad lines skipped", func(t *testing.T) {
		items := parseConsumeLines("蘋果 2個\n???\n\n橘子 1")
		if len(items) != 2 {
			t.Errorf("items = %+v", items)
		}
	})

	t.Run("nothing parses", func(t *testing.T) {
		if items := parseConsumeLines("只有名字沒有數量"); len(items) != 0 {
			t.Errorf("items = %+v", items)
		}
	})
}
