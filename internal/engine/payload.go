package engine

import (
	"taskanchor/internal/domain"
)

// PayloadInput is the raw, untyped field set a caller may supply. Each task
// type has one normalizer that picks the fields it owns, validates them and
// returns the variant's fully-typed canonical record. Fields a variant does
// not declare are rejected only by omission: they never reach the canonical
// form, so they can never influence the hash.
type PayloadInput struct {
	TransactionID         string
	TaskType              string
	CompanyAndArtist      string
	TargetPriceEth        string
	Scope                 string
	TargetPricePerToken   string
	Amount                string
	Currency              string
	Duration              string
	Deadline              string
	DateDeadline          string
	TechnicalVerification string
	Chain                 string
	Platform              string
	Priority              string
	Details               string
}

// Canonical payload records. No omitempty anywhere: absent optionals must
// serialize as explicit null so omission and emptiness hash identically.

type liquidationPayload struct {
	TransactionID    string  `json:"transaction_id"`
	TaskType         string  `json:"task_type"`
	CompanyAndArtist string  `json:"company_and_artist"`
	TargetPriceEth   string  `json:"target_price_eth"`
	DateDeadline     string  `json:"date_deadline"`
	Chain            *string `json:"chain"`
	Platform         *string `json:"platform"`
	Priority         *string `json:"priority"`
	Details          *string `json:"details"`
}

type acquisitionPayload struct {
	TransactionID    string  `json:"transaction_id"`
	TaskType         string  `json:"task_type"`
	CompanyAndArtist string  `json:"company_and_artist"`
	TargetPriceEth   string  `json:"target_price_eth"`
	DateDeadline     string  `json:"date_deadline"`
	Chain            *string `json:"chain"`
	Platform         *string `json:"platform"`
	Priority         *string `json:"priority"`
	Details          *string `json:"details"`
}

type authorizationPayload struct {
	TransactionID    string  `json:"transaction_id"`
	TaskType         string  `json:"task_type"`
	CompanyAndArtist string  `json:"company_and_artist"`
	Scope            string  `json:"scope"`
	DateDeadline     string  `json:"date_deadline"`
	Chain            *string `json:"chain"`
	Platform         *string `json:"platform"`
	Priority         *string `json:"priority"`
	Details          *string `json:"details"`
}

type arbitragePayload struct {
	TransactionID       string  `json:"transaction_id"`
	TaskType            string  `json:"task_type"`
	TargetPricePerToken string  `json:"target_price_per_token"`
	Amount              string  `json:"amount"`
	Currency            string  `json:"currency"`
	Duration            string  `json:"duration"`
	Deadline            string  `json:"deadline"`
	Chain               *string `json:"chain"`
	Platform            *string `json:"platform"`
	Priority            *string `json:"priority"`
	Details             *string `json:"details"`
}

// vaultPayload omits chain/platform/priority entirely; the variant has no
// such fields, and its remaining optionals default to null.
type vaultPayload struct {
	TransactionID         string  `json:"transaction_id"`
	TaskType              string  `json:"task_type"`
	CompanyAndArtist      string  `json:"company_and_artist"`
	TechnicalVerification string  `json:"technical_verification"`
	Details               *string `json:"details"`
}

// normalized carries the typed canonical record plus the descriptive columns
// the repository stores alongside the verbatim payload.
type normalized struct {
	payload  any
	chain    *string
	platform *string
	priority *string
	details  *string
}

func normalizePayload(in PayloadInput) (normalized, error) {
	if in.TransactionID == "" {
		return normalized{}, payloadErr(in.TaskType, "transaction_id", "is required")
	}
	switch in.TaskType {
	case domain.TypeLiquidation:
		return normalizeLiquidation(in)
	case domain.TypeAcquisition:
		return normalizeAcquisition(in)
	case domain.TypeAuthorization:
		return normalizeAuthorization(in)
	case domain.TypeArbitrage:
		return normalizeArbitrage(in)
	case domain.TypeVault:
		return normalizeVault(in)
	default:
		return normalized{}, payloadErr(in.TaskType, "task_type", "is not a known task type")
	}
}

func normalizeLiquidation(in PayloadInput) (normalized, error) {
	if in.CompanyAndArtist == "" {
		return normalized{}, payloadErr(in.TaskType, "company_and_artist", "is required")
	}
	if in.TargetPriceEth == "" {
		return normalized{}, payloadErr(in.TaskType, "target_price_eth", "is required")
	}
	if in.DateDeadline == "" {
		return normalized{}, payloadErr(in.TaskType, "date_deadline", "is required")
	}
	p := liquidationPayload{
		TransactionID:    in.TransactionID,
		TaskType:         in.TaskType,
		CompanyAndArtist: in.CompanyAndArtist,
		TargetPriceEth:   in.TargetPriceEth,
		DateDeadline:     in.DateDeadline,
		Chain:            optional(in.Chain),
		Platform:         optional(in.Platform),
		Priority:         optional(in.Priority),
		Details:          optional(in.Details),
	}
	return normalized{payload: p, chain: p.Chain, platform: p.Platform, priority: p.Priority, details: p.Details}, nil
}

func normalizeAcquisition(in PayloadInput) (normalized, error) {
	if in.CompanyAndArtist == "" {
		return normalized{}, payloadErr(in.TaskType, "company_and_artist", "is required")
	}
	if in.TargetPriceEth == "" {
		return normalized{}, payloadErr(in.TaskType, "target_price_eth", "is required")
	}
	if in.DateDeadline == "" {
		return normalized{}, payloadErr(in.TaskType, "date_deadline", "is required")
	}
	p := acquisitionPayload{
		TransactionID:    in.TransactionID,
		TaskType:         in.TaskType,
		CompanyAndArtist: in.CompanyAndArtist,
		TargetPriceEth:   in.TargetPriceEth,
		DateDeadline:     in.DateDeadline,
		Chain:            optional(in.Chain),
		Platform:         optional(in.Platform),
		Priority:         optional(in.Priority),
		Details:          optional(in.Details),
	}
	return normalized{payload: p, chain: p.Chain, platform: p.Platform, priority: p.Priority, details: p.Details}, nil
}

func normalizeAuthorization(in PayloadInput) (normalized, error) {
	if in.CompanyAndArtist == "" {
		return normalized{}, payloadErr(in.TaskType, "company_and_artist", "is required")
	}
	if in.Scope == "" {
		return normalized{}, payloadErr(in.TaskType, "scope", "is required")
	}
	if in.DateDeadline == "" {
		return normalized{}, payloadErr(in.TaskType, "date_deadline", "is required")
	}
	p := authorizationPayload{
		TransactionID:    in.TransactionID,
		TaskType:         in.TaskType,
		CompanyAndArtist: in.CompanyAndArtist,
		Scope:            in.Scope,
		DateDeadline:     in.DateDeadline,
		Chain:            optional(in.Chain),
		Platform:         optional(in.Platform),
		Priority:         optional(in.Priority),
		Details:          optional(in.Details),
	}
	return normalized{payload: p, chain: p.Chain, platform: p.Platform, priority: p.Priority, details: p.Details}, nil
}

func normalizeArbitrage(in PayloadInput) (normalized, error) {
	if in.TargetPricePerToken == "" {
		return normalized{}, payloadErr(in.TaskType, "target_price_per_token", "is required")
	}
	if in.Amount == "" {
		return normalized{}, payloadErr(in.TaskType, "amount", "is required")
	}
	if in.Currency == "" {
		return normalized{}, payloadErr(in.TaskType, "currency", "is required")
	}
	if in.Duration == "" {
		return normalized{}, payloadErr(in.TaskType, "duration", "is required")
	}
	if in.Deadline == "" {
		return normalized{}, payloadErr(in.TaskType, "deadline", "is required")
	}
	p := arbitragePayload{
		TransactionID:       in.TransactionID,
		TaskType:            in.TaskType,
		TargetPricePerToken: in.TargetPricePerToken,
		Amount:              in.Amount,
		Currency:            in.Currency,
		Duration:            in.Duration,
		Deadline:            in.Deadline,
		Chain:               optional(in.Chain),
		Platform:            optional(in.Platform),
		Priority:            optional(in.Priority),
		Details:             optional(in.Details),
	}
	return normalized{payload: p, chain: p.Chain, platform: p.Platform, priority: p.Priority, details: p.Details}, nil
}

func normalizeVault(in PayloadInput) (normalized, error) {
	if in.CompanyAndArtist == "" {
		return normalized{}, payloadErr(in.TaskType, "company_and_artist", "is required")
	}
	if in.TechnicalVerification == "" {
		return normalized{}, payloadErr(in.TaskType, "technical_verification", "is required")
	}
	p := vaultPayload{
		TransactionID:         in.TransactionID,
		TaskType:              in.TaskType,
		CompanyAndArtist:      in.CompanyAndArtist,
		TechnicalVerification: in.TechnicalVerification,
		Details:               optional(in.Details),
	}
	return normalized{payload: p, details: p.Details}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
