package domain

import "time"

// ResultStatus distinguishes a successful verification from one that failed
// after retries or terminally.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
)

func (s ResultStatus) String() string { return string(s) }

// Outcome is the typed payload returned by the upstream verification API.
// Number fields are populated for the numbers category, Quality/ResultCode for
// addresses. Field names beyond these are provider-specific and not modeled.
type Outcome struct {
	ValidNumber        string `json:"validNumber,omitempty"`
	Reachable          string `json:"reachable,omitempty"`
	Ported             string `json:"ported,omitempty"`
	Roaming            string `json:"roaming,omitempty"`
	CurrentCarrier     string `json:"currentCarrier,omitempty"`
	OriginalCarrier    string `json:"originalCarrier,omitempty"`
	CurrentNetworkType string `json:"currentNetworkType,omitempty"`
	GSMCode            string `json:"gsmCode,omitempty"`
	Quality            string `json:"quality,omitempty"`
	ResultCode         string `json:"resultCode,omitempty"`
}

// IsValid reports the raw provider verdict for the given category, before any
// carrier-code override is applied.
func (o *Outcome) IsValid(category Category) bool {
	if o == nil {
		return false
	}
	if category == CategoryAddresses {
		return o.ResultCode == "deliverable"
	}
	return o.ValidNumber == "valid"
}

// Result is the durable, immutable record of one item's verification outcome
// within a batch. The set of Result rows for a batch is its resume checkpoint.
type Result struct {
	ID           string
	BatchID      string
	Item         string
	Status       ResultStatus
	Outcome      *Outcome
	ErrorMessage *string
	Valid        bool
	AttemptCount int
	CreatedAt    time.Time
}

// healthAttributes are the outcome fields that contribute to the health score,
// 20 points each.
var healthAttributes = [](func(*Outcome) bool){
	func(o *Outcome) bool { return o.ValidNumber == "valid" },
	func(o *Outcome) bool { return o.Reachable == "reachable" },
	func(o *Outcome) bool { return o.Ported == "not_ported" },
	func(o *Outcome) bool { return o.Roaming == "not_roaming" },
	func(o *Outcome) bool { return o.CurrentNetworkType == "mobile" },
}

// HealthScore rates a number outcome from 0 to 100.
func HealthScore(o *Outcome) int {
	if o == nil {
		return 0
	}

	score := 0
	for _, attr := range healthAttributes {
		if attr(o) {
			score += 20
		}
	}
	return score
}
