package upstream

import "github.com/cembakir/veriflow/internal/domain"

// Classifier decides whether provider metadata force-invalidates an outcome
// whose raw validity flag looks fine. The code list is provider policy, so it
// stays pluggable.
type Classifier interface {
	ForceInvalid(o *domain.Outcome) bool
}

// GSMCodeClassifier invalidates outcomes carrying specific GSM error codes
// regardless of the raw validity flag.
type GSMCodeClassifier struct {
	codes map[string]struct{}
}

// DefaultGSMCodes covers absent subscriber (1), call barred (10), unknown
// subscriber (30) and teleservice not provisioned (11).
var DefaultGSMCodes = []string{"1", "10", "11", "30"}

func NewGSMCodeClassifier(codes []string) *GSMCodeClassifier {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return &GSMCodeClassifier{codes: set}
}

func NewDefaultClassifier() *GSMCodeClassifier {
	return NewGSMCodeClassifier(DefaultGSMCodes)
}

func (c *GSMCodeClassifier) ForceInvalid(o *domain.Outcome) bool {
	if c == nil || o == nil || o.GSMCode == "" {
		return false
	}
	_, bad := c.codes[o.GSMCode]
	return bad
}
