package eligibility

import (
	"context"
	"fmt"

	"airdrop-eligibility-api/internal/models"
)

// Registry resolves a check method to its checker. The first checker
// registered for a method wins.
type Registry struct {
	byMethod map[Method]Checker
	checkers []Checker
}

// NewRegistry builds the method table from checkers in order.
func NewRegistry(checkers ...Checker) *Registry {
	r := &Registry{byMethod: make(map[Method]Checker)}
	for _, c := range checkers {
		r.checkers = append(r.checkers, c)
		for _, m := range c.Methods() {
			if _, taken := r.byMethod[m]; !taken {
				r.byMethod[m] = c
			}
		}
	}
	return r
}

// Lookup returns the checker registered for m.
func (r *Registry) Lookup(m Method) (Checker, bool) {
	if c, ok := r.byMethod[m]; ok {
		return c, true
	}
	// Checkers may accept methods they do not advertise.
	for _, c := range r.checkers {
		if c.CanHandle(m) {
			return c, true
		}
	}
	return nil, false
}

// Check dispatches to the checker for the campaign's method, synthesizing a
// negative outcome when none exists.
func (r *Registry) Check(ctx context.Context, wallet string, campaign models.Campaign) (Outcome, Method) {
	m := ParseMethod(campaign.CheckMethod)
	c, ok := r.Lookup(m)
	if !ok {
		return negative(fmt.Sprintf("no checker for method: %s", campaign.CheckMethod)), m
	}
	return c.Check(ctx, wallet, campaign), m
}
