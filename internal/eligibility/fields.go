package eligibility

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Known response shapes of partner eligibility APIs. Aliases are tried in
// order; the first field that parses wins.
var (
	eligibleFields = []string{"eligible", "isEligible", "is_eligible"}
	amountFields   = []string{"amount", "allocation", "allocationAmount", "token_amount"}
	usdFields      = []string{"amountUsd", "usd_value", "allocationUsd"}
	claimedFields  = []string{"claimed", "hasClaimed", "isClaimed"}
)

// fieldParser decodes one raw JSON value, reporting ok=false when the value
// has an unsupported shape.
type fieldParser[T any] func(raw json.RawMessage) (T, bool)

// alias pairs a field name with the parser used for it.
type alias[T any] struct {
	field string
	parse fieldParser[T]
}

func aliases[T any](parse fieldParser[T], fields ...string) []alias[T] {
	out := make([]alias[T], len(fields))
	for i, f := range fields {
		out[i] = alias[T]{field: f, parse: parse}
	}
	return out
}

// firstMatch returns the value of the first alias present and parseable.
// A JSON null counts as absent.
func firstMatch[T any](obj map[string]json.RawMessage, list []alias[T]) (T, bool) {
	for _, a := range list {
		raw, ok := obj[a.field]
		if !ok || isNull(raw) {
			continue
		}
		if v, ok := a.parse(raw); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// parseBool accepts JSON booleans and "true"/"false" strings.
func parseBool(raw json.RawMessage) (bool, bool) {
	if isNull(raw) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// parseDecimal accepts JSON numbers and numeric strings.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	if isNull(raw) {
		return decimal.Decimal{}, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d, true
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

var (
	eligibleAliases = aliases(parseBool, eligibleFields...)
	amountAliases   = aliases(parseDecimal, amountFields...)
	usdAliases      = aliases(parseDecimal, usdFields...)
	claimedAliases  = aliases(parseBool, claimedFields...)
)

// parseEligibilityBody maps a partner response body to an Outcome. ok is
// false when the body is not a JSON object.
func parseEligibilityBody(body []byte) (Outcome, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return Outcome{}, false
	}

	var out Outcome
	amount, hasAmount := firstMatch(obj, amountAliases)
	if hasAmount {
		out.AllocationAmount = &amount
	}
	if usd, ok := firstMatch(obj, usdAliases); ok {
		out.AllocationUSD = &usd
	}
	out.HasClaimed, _ = firstMatch(obj, claimedAliases)

	if eligible, ok := firstMatch(obj, eligibleAliases); ok {
		out.IsEligible = eligible
	} else {
		out.IsEligible = hasAmount && amount.IsPositive()
	}

	if raw, ok := obj["proof"]; ok {
		var proof []string
		if json.Unmarshal(raw, &proof) == nil {
			out.MerkleProof = proof
		}
	}

	return out, true
}
