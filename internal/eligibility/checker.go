// Package eligibility decides whether a wallet qualifies for airdrop
// campaigns. Checkers are strategies selected by a campaign's check method;
// the Aggregator fans out over active campaigns and caches each outcome.
package eligibility

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"airdrop-eligibility-api/internal/models"
)

// Method is a campaign check-method category.
type Method string

const (
	MethodAPI    Method = "api"
	MethodMerkle Method = "merkle"
	MethodManual Method = "manual"
)

// ParseMethod normalizes a stored check-method tag. Unknown tags are kept
// verbatim so that dispatch can report them.
func ParseMethod(s string) Method {
	return Method(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether m is one of the predefined methods.
func (m Method) Known() bool {
	switch m {
	case MethodAPI, MethodMerkle, MethodManual:
		return true
	}
	return false
}

// Outcome is the raw answer of a checker for one (wallet, campaign).
type Outcome struct {
	IsEligible       bool
	AllocationAmount *decimal.Decimal
	AllocationUSD    *decimal.Decimal
	HasClaimed       bool
	MerkleProof      []string
	ErrorMessage     string
}

// Checker determines eligibility for one or more check methods. Check never
// returns an error: failures are expressed as a negative Outcome with an
// ErrorMessage.
type Checker interface {
	Methods() []Method
	CanHandle(m Method) bool
	Check(ctx context.Context, wallet string, campaign models.Campaign) Outcome
}

func negative(msg string) Outcome {
	return Outcome{ErrorMessage: msg}
}
