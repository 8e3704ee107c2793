package models

// CostCall records one billed backend call.
type CostCall struct {
	Model string  `json:"model"`
	Cost  float64 `json:"cost"`
	TS    string  `json:"ts"`
	Note  string  `json:"note,omitempty"`
}

// CostLedger tallies backend spend. It lives both on the project document and
// as a process-wide session ledger.
type CostLedger struct {
	Total float64    `json:"total"`
	Calls []CostCall `json:"calls"`
}

// Add appends a call and updates the running total.
func (l *CostLedger) Add(call CostCall) {
	l.Calls = append(l.Calls, call)
	l.Total += call.Cost
}
