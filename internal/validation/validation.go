package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/gosimple/slug"

	"airdrop-eligibility-api/internal/chain"
	"airdrop-eligibility-api/internal/models"
)

const (
	maxNameLen      = 128
	maxSymbolLen    = 16
	maxCriteria     = 50
	maxCriterionLen = 256
)

var (
	idRegex     = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	symbolRegex = regexp.MustCompile(`^[A-Za-z0-9]+$`)

	// Ids that would be shadowed by static sibling routes under
	// /wallets/{address}/eligibility and /wallets/{address}/points.
	reservedCampaignIDs = map[string]bool{"cached": true}
	reservedProgramIDs  = map[string]bool{"history": true, "refresh": true}
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Validation marks the error as a client error for the error classifiers.
func (e *ValidationError) Validation() bool { return true }

// ValidateCampaign sanitizes c in place and checks it. A missing ID is
// derived from the name.
func ValidateCampaign(c *models.Campaign) error {
	c.Name = SanitizeString(c.Name)
	c.TokenSymbol = strings.ToUpper(SanitizeString(c.TokenSymbol))
	c.Chain = strings.ToLower(SanitizeString(c.Chain))
	c.CheckMethod = strings.ToLower(SanitizeString(c.CheckMethod))
	c.EligibilityAPIURL = SanitizeString(c.EligibilityAPIURL)
	c.ClaimURL = SanitizeString(c.ClaimURL)
	c.EligibilitySource = SanitizeString(c.EligibilitySource)

	if err := requireName("name", c.Name); err != nil {
		return err
	}
	id, err := resolveID(c.ID, c.Name, reservedCampaignIDs)
	if err != nil {
		return err
	}
	c.ID = id

	if c.TokenSymbol == "" {
		return &ValidationError{Field: "token_symbol", Message: "is required"}
	}
	if len(c.TokenSymbol) > maxSymbolLen || !symbolRegex.MatchString(c.TokenSymbol) {
		return &ValidationError{Field: "token_symbol", Message: "must be alphanumeric, at most 16 characters"}
	}

	switch c.Status {
	case models.CampaignUpcoming, models.CampaignClaimable, models.CampaignExpired:
	case "":
		c.Status = models.CampaignUpcoming
	default:
		return &ValidationError{Field: "status", Message: "must be one of upcoming, claimable, expired"}
	}

	switch c.CheckMethod {
	case "api", "merkle", "manual":
	case "":
		c.CheckMethod = "manual"
	default:
		return &ValidationError{Field: "check_method", Message: "must be one of api, merkle, manual"}
	}

	if err := validateURL("eligibility_api_url", c.EligibilityAPIURL); err != nil {
		return err
	}
	if err := validateURL("claim_url", c.ClaimURL); err != nil {
		return err
	}

	if c.SnapshotDate != nil && c.ClaimDeadline != nil && c.ClaimDeadline.Before(*c.SnapshotDate) {
		return &ValidationError{Field: "claim_deadline", Message: "must not be before snapshot_date"}
	}

	criteria, err := sanitizeCriteria(c.Criteria)
	if err != nil {
		return err
	}
	c.Criteria = criteria

	if c.TotalEligibleAddresses != nil && *c.TotalEligibleAddresses < 0 {
		return &ValidationError{Field: "total_eligible_addresses", Message: "must be non-negative"}
	}
	if c.AverageAllocationUSD != nil && c.AverageAllocationUSD.IsNegative() {
		return &ValidationError{Field: "average_allocation_usd", Message: "must be non-negative"}
	}
	return nil
}

// ValidateProgram sanitizes p in place and checks it. A missing ID is
// derived from the protocol name.
func ValidateProgram(p *models.PointsProgram) error {
	p.ProtocolName = SanitizeString(p.ProtocolName)
	p.PointsName = SanitizeString(p.PointsName)
	p.Chain = strings.ToLower(SanitizeString(p.Chain))
	p.TrackingMethod = strings.ToLower(SanitizeString(p.TrackingMethod))
	p.APIEndpoint = SanitizeString(p.APIEndpoint)
	p.DashboardURL = SanitizeString(p.DashboardURL)
	p.TokenSymbol = strings.ToUpper(SanitizeString(p.TokenSymbol))
	p.EstimatedTGEDate = SanitizeString(p.EstimatedTGEDate)

	if err := requireName("protocol_name", p.ProtocolName); err != nil {
		return err
	}
	id, err := resolveID(p.ID, p.ProtocolName, reservedProgramIDs)
	if err != nil {
		return err
	}
	p.ID = id

	if err := requireName("points_name", p.PointsName); err != nil {
		return err
	}

	switch p.Status {
	case models.ProgramActive, models.ProgramEnded, models.ProgramUpcoming:
	case "":
		p.Status = models.ProgramActive
	default:
		return &ValidationError{Field: "status", Message: "must be one of active, ended, upcoming"}
	}

	switch p.TrackingMethod {
	case "api", "scrape", "manual":
	case "":
		p.TrackingMethod = "manual"
	default:
		return &ValidationError{Field: "tracking_method", Message: "must be one of api, scrape, manual"}
	}

	if p.TokenSymbol != "" && (len(p.TokenSymbol) > maxSymbolLen || !symbolRegex.MatchString(p.TokenSymbol)) {
		return &ValidationError{Field: "token_symbol", Message: "must be alphanumeric, at most 16 characters"}
	}
	if err := validateURL("api_endpoint", p.APIEndpoint); err != nil {
		return err
	}
	return validateURL("dashboard_url", p.DashboardURL)
}

// ValidateWallet checks that address is an EVM or Solana wallet address.
func ValidateWallet(address string) error {
	if _, err := chain.ValidateAddress(SanitizeString(address)); err != nil {
		return &ValidationError{Field: "address", Message: "must be a 0x-prefixed EVM address or a base58 Solana address"}
	}
	return nil
}

// ParseLimit parses an optional limit query parameter. An empty value
// yields 0 so the caller's default applies.
func ParseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ValidationError{Field: "limit", Message: "must be an integer"}
	}
	return n, nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

func requireName(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	if len(value) > maxNameLen {
		return &ValidationError{Field: field, Message: "cannot exceed 128 characters"}
	}
	return nil
}

func resolveID(id, name string, reserved map[string]bool) (string, error) {
	id = strings.ToLower(SanitizeString(id))
	if id == "" {
		id = slug.Make(name)
	}
	if !idRegex.MatchString(id) {
		return "", &ValidationError{Field: "id", Message: "must be lower-case letters, digits and single dashes"}
	}
	if reserved[id] {
		return "", &ValidationError{Field: "id", Message: fmt.Sprintf("%q is reserved", id)}
	}
	return id, nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: field, Message: "must be an absolute http(s) URL"}
	}
	return nil
}

func sanitizeCriteria(in []string) ([]string, error) {
	if len(in) > maxCriteria {
		return nil, &ValidationError{Field: "criteria", Message: "cannot contain more than 50 entries"}
	}
	out := make([]string, 0, len(in))
	for i, c := range in {
		c = SanitizeString(c)
		if c == "" {
			continue
		}
		if len(c) > maxCriterionLen {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("criteria[%d]", i),
				Message: "cannot exceed 256 characters",
			}
		}
		out = append(out, c)
	}
	return out, nil
}
