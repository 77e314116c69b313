package server

import (
	"taskanchor/internal/domain"
	"taskanchor/internal/engine"
)

// CreateTaskRequest carries the flat payload fields. Each task type consumes
// the subset it declares; the rest are ignored.
type CreateTaskRequest struct {
	TransactionID         string `json:"transaction_id" example:"txn-2026-0142"`
	TaskType              string `json:"task_type" enum:"liquidation,acquisition,authorization,arbitrage,vault"`
	CompanyAndArtist      string `json:"company_and_artist,omitempty"`
	TargetPriceEth        string `json:"target_price_eth,omitempty"`
	Scope                 string `json:"scope,omitempty"`
	TargetPricePerToken   string `json:"target_price_per_token,omitempty"`
	Amount                string `json:"amount,omitempty"`
	Currency              string `json:"currency,omitempty"`
	Duration              string `json:"duration,omitempty"`
	Deadline              string `json:"deadline,omitempty"`
	DateDeadline          string `json:"date_deadline,omitempty"`
	TechnicalVerification string `json:"technical_verification,omitempty"`
	Chain                 string `json:"chain,omitempty"`
	Platform              string `json:"platform,omitempty"`
	Priority              string `json:"priority,omitempty"`
	Details               string `json:"details,omitempty"`
}

func (r CreateTaskRequest) payloadInput() engine.PayloadInput {
	return engine.PayloadInput{
		TransactionID:         r.TransactionID,
		TaskType:              r.TaskType,
		CompanyAndArtist:      r.CompanyAndArtist,
		TargetPriceEth:        r.TargetPriceEth,
		Scope:                 r.Scope,
		TargetPricePerToken:   r.TargetPricePerToken,
		Amount:                r.Amount,
		Currency:              r.Currency,
		Duration:              r.Duration,
		Deadline:              r.Deadline,
		DateDeadline:          r.DateDeadline,
		TechnicalVerification: r.TechnicalVerification,
		Chain:                 r.Chain,
		Platform:              r.Platform,
		Priority:              r.Priority,
		Details:               r.Details,
	}
}

type ProofRequest struct {
	Type     string  `json:"type" enum:"text,image"`
	Value    string  `json:"value"`
	FileName *string `json:"file_name,omitempty"`
	FileSize *int64  `json:"file_size,omitempty"`
	MimeType *string `json:"mime_type,omitempty"`
}

func proofInputs(reqs []ProofRequest) []engine.ProofInput {
	out := make([]engine.ProofInput, len(reqs))
	for i, p := range reqs {
		out[i] = engine.ProofInput{
			Type:     p.Type,
			Value:    p.Value,
			FileName: p.FileName,
			FileSize: p.FileSize,
			MimeType: p.MimeType,
		}
	}
	return out
}

type ExecuteRequest struct {
	Proofs []ProofRequest `json:"proofs"`
}

type BatchExecuteRequest struct {
	Items []BatchExecuteItem `json:"items"`
}

type BatchExecuteItem struct {
	TaskID string         `json:"task_id"`
	Proofs []ProofRequest `json:"proofs"`
}

type ModerateRequest struct {
	State  string `json:"state" enum:"blocked,cancelled"`
	Reason string `json:"reason,omitempty"`
}

type CreateUserRequest struct {
	Address string `json:"address"`
	Role    string `json:"role" enum:"admin,consultant,member"`
	Name    string `json:"name,omitempty"`
}

type TaskResponse struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transaction_id"`
	TaskType      string  `json:"task_type"`
	TaskData      string  `json:"task_data_json"`
	TaskHash      string  `json:"task_hash"`
	LedgerTxRef   string  `json:"ledger_tx_ref"`
	State         string  `json:"state"`
	Priority      *string `json:"priority,omitempty"`
	Chain         *string `json:"chain,omitempty"`
	Platform      *string `json:"platform,omitempty"`
	Details       *string `json:"details,omitempty"`
	OwnerID       string  `json:"owner_id"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:            t.ID,
		TransactionID: t.TransactionID,
		TaskType:      t.TaskType,
		TaskData:      t.TaskDataJSON,
		TaskHash:      t.TaskHash,
		LedgerTxRef:   t.LedgerTxRef,
		State:         t.State,
		Priority:      t.Priority,
		Chain:         t.Chain,
		Platform:      t.Platform,
		Details:       t.Details,
		OwnerID:       t.OwnerID,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, len(items))
	for i, t := range items {
		out[i] = taskResponse(t)
	}
	return out
}

type TaskPageResponse struct {
	Items      []TaskResponse `json:"items"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
	HasNext    bool           `json:"has_next"`
	HasPrev    bool           `json:"has_prev"`
}

func pageResponse(p engine.TaskPage) TaskPageResponse {
	return TaskPageResponse{
		Items:      mapTasks(p.Items),
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      p.Total,
		TotalPages: p.TotalPages,
		HasNext:    p.HasNext,
		HasPrev:    p.HasPrev,
	}
}
