package campaign

import "strings"

// =============================================================================
// OPT-OUT KEYWORDS - Compliance requirement, fixed set
// =============================================================================

// optOutKeywords is the fixed keyword set that permanently opts a
// contact out. Matching is case-insensitive against the trimmed body.
var optOutKeywords = map[string]bool{
	"STOP":        true,
	"UNSUBSCRIBE": true,
	"REMOVE":      true,
	"CANCEL":      true,
	"QUIT":        true,
	"END":         true,
}

// IsOptOutMessage reports whether an inbound body is an opt-out request.
func IsOptOutMessage(body string) bool {
	return optOutKeywords[strings.ToUpper(strings.TrimSpace(body))]
}
