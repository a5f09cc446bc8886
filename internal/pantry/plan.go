package pantry

// deductStep is one planned mutation of an oldest-first deduction.
type deductStep struct {
	recordID    int64
	remove      bool
	newQuantity float64
	consumed    float64
}

// planDeduction walks records in storage order and decides, per record,
// whether it is consumed whole (removed) or reduced in place. Records
// with no recorded quantity are skipped. The second return is the unmet
// remainder, zero when stock covered the request.
func planDeduction(records []Record, amount float64) ([]deductStep, float64) {
	if amount <= 0 {
		return nil, 0
	}

	var steps []deductStep
	need := amount
	for _, rec := range records {
		if need <= 0 {
			break
		}
		if rec.Quantity == nil {
			continue
		}
		q := *rec.Quantity
		if q <= 0 {
			steps = append(steps, deductStep{recordID: rec.ID, remove: true})
			continue
		}
		if q <= need {
			steps = append(steps, deductStep{recordID: rec.ID, remove: true, consumed: q})
			need -= q
		} else {
			steps = append(steps, deductStep{recordID: rec.ID, newQuantity: q - need, consumed: need})
			need = 0
		}
	}
	return steps, need
}
