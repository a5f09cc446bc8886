package pantry

import (
	"testing"
	"time"
)

func qty(v float64) *float64 { return &v }

func recs(quantities ...*float64) []Record {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Record, len(quantities))
	for i, q := range quantities {
		out[i] = Record{
			ID:       int64(i + 1),
			Owner:    "U1",
			Name:     "蘋果",
			Quantity: q,
			StoredAt: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestPlanDeduction(t *testing.T) {
	cases := []struct {
		name          string
		records       []Record
		amount        float64
		wantSteps     []deductStep
		wantRemainder float64
	}{
		{
			name:    "spans records, last reduced in place",
			records: recs(qty(2), qty(3)),
			amount:  4,
			wantSteps: []deductStep{
				{recordID: 1, remove: true, consumed: 2},
				{recordID: 2, newQuantity: 1, consumed: 2},
			},
		},
		{
			name:    "exact match deletes instead of zeroing",
			records: recs(qty(2), qty(3)),
			amount:  5,
			wantSteps: []deductStep{
				{recordID: 1, remove: true, consumed: 2},
				{recordID: 2, remove: true, consumed: 3},
			},
		},
		{
			name:    "shortfall reported as remainder",
			records: recs(qty(1), qty(1)),
			amount:  5,
			wantSteps: []deductStep{
				{recordID: 1, remove: true, consumed: 1},
				{recordID: 2, remove: true, consumed: 1},
			},
			wantRemainder: 3,
		},
		{
			name:    "single record reduced",
			records: recs(qty(10)),
			amount:  2.5,
			wantSteps: []deductStep{
				{recordID: 1, newQuantity: 7.5, consumed: 2.5},
			},
		},
		{
			name:    "null quantity records are skipped",
			records: recs(nil, qty(3)),
			amount:  2,
			wantSteps: []deductStep{
				{recordID: 2, newQuantity: 1, consumed: 2},
			},
		},
		{
			name:          "no stock at all",
			records:       recs(nil),
			amount:        2,
			wantRemainder: 2,
		},
		{
			name:    "zero amount is a no-op",
			records: recs(qty(3)),
			amount:  0,
		},
		{
			name:    "negative amount is a no-op",
			records: recs(qty(3)),
			amount:  -1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			steps, remainder := planDeduction(tc.records, tc.amount)
			if remainder != tc.wantRemainder {
				t.Errorf("remainder = %v, want %v", remainder, tc.wantRemainder)
			}
			if len(steps) != len(tc.wantSteps) {
				t.Fatalf("steps = %+v, want %+v", steps, tc.wantSteps)
			}
			for i, st := range steps {
				if st != tc.wantSteps[i] {
					t.Errorf("step[%d] = %+v, want %+v", i, st, tc.wantSteps[i])
				}
			}
		})
	}
}

func TestPlanDeductionNeverNegative(t *testing.T) {
	// Whatever the request, a planned in-place quantity stays positive and
	// total consumed never exceeds the request.
	amounts := []float64{0.1, 1, 2.5, 7, 100}
	stock := recs(qty(2), qty(0.5), nil, qty(4))

	for _, amount := range amounts {
		steps, remainder := planDeduction(stock, amount)
		consumed := 0.0
		for _, st := range steps {
			if !st.remove && st.newQuantity <= 0 {
				t.Errorf("amount %v: in-place quantity %v not positive", amount, st.newQuantity)
			}
			consumed += st.consumed
		}
		if consumed+remainder != amount {
			t.Errorf("amount %v: consumed %v + remainder %v != request", amount, consumed, remainder)
		}
	}
}
