package router

import (
	"regexp"
	"strconv"
	"strings"
)

// indexedDeleteRe matches "<index>" or "<index> <amount>". It must cover
// the whole line; anything longer falls through to the named grammar.
var indexedDeleteRe = regexp.MustCompile(`^(\d+)(?:\s+(\d+(?:\.\d+)?))?$`)

// consumeLineRe matches "<name><amount>[unit]" with optional whitespace,
// e.g. "蘋果 2個" or "牛奶1.5瓶". The name part excludes digits so the
// amount boundary is unambiguous.
var consumeLineRe = regexp.MustCompile(`([^\d\s]+?)\s*(\d+(?:\.\d+)?)\s*(個|件|包|盒|瓶|罐|條|根|片|塊|斤|公斤|克|kg|g)?`)

// indexedDelete is a parsed by-number deletion. Amount is nil for a full
// record delete.
type indexedDelete struct {
	Index  int
	Amount *float64
}

// parseIndexedDelete parses the numbered deletion form.
func parseIndexedDelete(text string) (indexedDelete, bool) {
	m := indexedDeleteRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return indexedDelete{}, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return indexedDelete{}, false
	}
	out := indexedDelete{Index: idx}
	if m[2] != "" {
		amount, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return indexedDelete{}, false
		}
		out.Amount = &amount
	}
	return out, true
}

// consumeItem is one parsed line of free-text consumption.
type consumeItem struct {
	Name   string
	Amount float64
	Unit   string
}

// parseConsumeLines parses multi-line consumption text. Each line is
// independent; lines that do not parse are skipped so one typo does not
// void the rest of the batch.
func parseConsumeLines(text string) []consumeItem {
	var items []consumeItem
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		m := consumeLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		amount, err := strconv.ParseFloat(m[2], 64)
		if err != nil || amount <= 0 {
			continue
		}
		items = append(items, consumeItem{
			Name:   strings.TrimSpace(m[1]),
			Amount: amount,
			Unit:   m[3],
		})
	}
	return items
}
