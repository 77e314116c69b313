package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskanchor/internal/canonical"
	"taskanchor/internal/config"
	"taskanchor/internal/domain"
	"taskanchor/internal/events"
	"taskanchor/internal/ledger"
	"taskanchor/internal/repo"
)

// Engine implements the task commitment lifecycle: canonicalize, anchor on
// the ledger, persist, execute, moderate. The ledger write happens before the
// repository insert, so a task row never exists without its anchor.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Ledger ledger.Client
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, client ledger.Client, cfg *config.Config) *Engine {
	now := time.Now
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db, Now: now},
		Ledger: client,
		Config: cfg,
		Now:    now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e *Engine) maxBatchSize() int {
	if e.Config != nil && e.Config.Ledger.MaxBatchSize > 0 {
		return e.Config.Ledger.MaxBatchSize
	}
	return ledger.DefaultMaxBatchSize
}

// CreateTaskInput is the untyped create request. OwnerID selects the user
// whose ledger address signs the commitment.
type CreateTaskInput struct {
	OwnerID string
	Payload PayloadInput
}

// CreateTask normalizes the payload, hashes it, anchors the hash and then
// persists the task as stored. If the ledger write fails nothing is
// persisted; if the insert then loses a race on transaction_id the create
// reports a duplicate even though the anchor went through, and the earlier
// row stays authoritative.
func (e *Engine) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	owner, err := e.Repo.GetUser(ctx, in.OwnerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, ErrUserNotFound
		}
		return domain.Task{}, err
	}
	if _, err := e.Repo.GetTaskByTransactionID(ctx, in.Payload.TransactionID); err == nil {
		return domain.Task{}, ErrDuplicateTask
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, err
	}

	norm, err := normalizePayload(in.Payload)
	if err != nil {
		return domain.Task{}, err
	}
	hash, raw, err := canonical.Sum(norm.payload)
	if err != nil {
		return domain.Task{}, fmt.Errorf("canonicalize payload: %w", err)
	}

	txRef, err := e.Ledger.Commit(ctx, hash, owner.Address)
	if err != nil {
		return domain.Task{}, err
	}

	ts := e.timestamp()
	task := domain.Task{
		ID:            uuid.NewString(),
		TransactionID: in.Payload.TransactionID,
		TaskType:      in.Payload.TaskType,
		TaskDataJSON:  string(raw),
		TaskHash:      hash,
		LedgerTxRef:   txRef,
		State:         domain.StateStored,
		Priority:      norm.priority,
		Chain:         norm.chain,
		Platform:      norm.platform,
		Details:       norm.details,
		OwnerID:       owner.ID,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, task); err != nil {
		if errors.Is(err, repo.ErrDuplicateKey) {
			return domain.Task{}, ErrDuplicateTask
		}
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", task.ID, owner.ID, events.EventPayload{
		"transaction_id": task.TransactionID,
		"task_type":      task.TaskType,
		"task_hash":      task.TaskHash,
		"ledger_tx_ref":  task.LedgerTxRef,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (e *Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	task, err := e.Repo.GetTask(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, ErrTaskNotFound
	}
	return task, err
}

func (e *Engine) GetTaskProofs(ctx context.Context, id string) ([]domain.ExecutionProof, error) {
	if _, err := e.GetTask(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListProofs(ctx, id)
}

// ProofInput is one piece of execution evidence. Image proofs carry a
// reference to the stored object in Value, never the bytes.
type ProofInput struct {
	Type     string
	Value    string
	FileName *string
	FileSize *int64
	MimeType *string
}

func validateProofs(proofs []ProofInput) error {
	if len(proofs) == 0 {
		return ErrNoProofsProvided
	}
	for i, p := range proofs {
		if p.Type != domain.ProofText && p.Type != domain.ProofImage {
			return fmt.Errorf("proof %d: unknown proof type %q", i, p.Type)
		}
		if p.Value == "" {
			return fmt.Errorf("proof %d: value is required", i)
		}
	}
	return nil
}

// ExecuteTask marks a task executed and attaches its proofs in one
// transaction. Stored and executed tasks accept execution; re-executing an
// executed task appends proofs without changing state. Blocked and cancelled
// tasks refuse.
func (e *Engine) ExecuteTask(ctx context.Context, taskID, actorID string, proofs []ProofInput) (domain.Task, error) {
	task, err := e.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if task.State != domain.StateStored && task.State != domain.StateExecuted {
		return domain.Task{}, fmt.Errorf("%w: task is %s", ErrInvalidStateForExecution, task.State)
	}
	if err := validateProofs(proofs); err != nil {
		return domain.Task{}, err
	}

	ts := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	for _, p := range proofs {
		proof := domain.ExecutionProof{
			ID:         uuid.NewString(),
			TaskID:     task.ID,
			ProofType:  p.Type,
			ProofValue: p.Value,
			FileName:   p.FileName,
			FileSize:   p.FileSize,
			MimeType:   p.MimeType,
			CreatedAt:  ts,
		}
		if err := e.Repo.InsertProof(ctx, tx, proof); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Repo.SetTaskState(ctx, tx, task.ID, domain.StateExecuted, ts); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.executed", "task", task.ID, actorID, events.EventPayload{
		"previous_state": task.State,
		"proof_count":    len(proofs),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	task.State = domain.StateExecuted
	task.UpdatedAt = ts
	return task, nil
}

// BatchItem pairs a task id with its proofs for batch execution.
type BatchItem struct {
	TaskID string
	Proofs []ProofInput
}

// BatchItemError records one failed batch item; the rest of the batch is
// unaffected.
type BatchItemError struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type BatchResult struct {
	Successful []string         `json:"successful"`
	Failed     []BatchItemError `json:"failed"`
	Summary    BatchSummary     `json:"summary"`
}

// ExecuteBatch runs each item independently. The batch ceiling is checked
// before any item runs; past that gate one item's failure never rolls back
// another's success.
func (e *Engine) ExecuteBatch(ctx context.Context, actorID string, items []BatchItem) (BatchResult, error) {
	if len(items) == 0 {
		return BatchResult{}, ledger.ErrEmptyBatch
	}
	if max := e.maxBatchSize(); len(items) > max {
		return BatchResult{}, fmt.Errorf("%w: %d > %d", ledger.ErrBatchTooLarge, len(items), max)
	}
	res := BatchResult{Summary: BatchSummary{Total: len(items)}}
	for _, item := range items {
		if _, err := e.ExecuteTask(ctx, item.TaskID, actorID, item.Proofs); err != nil {
			res.Failed = append(res.Failed, BatchItemError{TaskID: item.TaskID, Error: err.Error()})
			continue
		}
		res.Successful = append(res.Successful, item.TaskID)
	}
	res.Summary.Successful = len(res.Successful)
	res.Summary.Failed = len(res.Failed)
	return res, nil
}

// Moderate moves a stored task to blocked or cancelled. Both are terminal;
// only stored tasks are eligible.
func (e *Engine) Moderate(ctx context.Context, taskID, actorID, state, reason string) (domain.Task, error) {
	if state != domain.StateBlocked && state != domain.StateCancelled {
		return domain.Task{}, ErrInvalidModerationState
	}
	task, err := e.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if task.State != domain.StateStored {
		return domain.Task{}, fmt.Errorf("%w: task is %s", ErrInvalidModerationState, task.State)
	}
	ts := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetTaskState(ctx, tx, task.ID, state, ts); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.moderated", "task", task.ID, actorID, events.EventPayload{
		"state":  state,
		"reason": reason,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	task.State = state
	task.UpdatedAt = ts
	return task, nil
}

// TaskListOptions page through tasks newest first.
type TaskListOptions struct {
	Type   string
	State  string
	Search string
	From   string
	To     string
	Page   int
	Limit  int
}

type TaskPage struct {
	Items      []domain.Task `json:"items"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
	HasNext    bool          `json:"has_next"`
	HasPrev    bool          `json:"has_prev"`
}

func (e *Engine) ListTasks(ctx context.Context, opts TaskListOptions) (TaskPage, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 20
	}
	if opts.Type != "" && !domain.ValidTaskType(opts.Type) {
		return TaskPage{}, payloadErr(opts.Type, "task_type", "is not a known task type")
	}
	if opts.State != "" && !domain.ValidState(opts.State) {
		return TaskPage{}, payloadErr("", "state", "is not a known state")
	}
	filters := repo.TaskFilters{
		TaskType: opts.Type,
		State:    opts.State,
		Search:   opts.Search,
		From:     opts.From,
		To:       opts.To,
		Limit:    opts.Limit,
		Offset:   (opts.Page - 1) * opts.Limit,
	}
	total, err := e.Repo.CountTasks(ctx, filters)
	if err != nil {
		return TaskPage{}, err
	}
	items, err := e.Repo.ListTasks(ctx, filters)
	if err != nil {
		return TaskPage{}, err
	}
	totalPages := (total + opts.Limit - 1) / opts.Limit
	return TaskPage{
		Items:      items,
		Page:       opts.Page,
		Limit:      opts.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    opts.Page < totalPages,
		HasPrev:    opts.Page > 1 && total > 0,
	}, nil
}

// Verification is the audit report for one task: the stored payload rehashed
// against the stored hash, plus the ledger's view of the hash when reachable.
type Verification struct {
	TaskID         string `json:"task_id"`
	TransactionID  string `json:"transaction_id"`
	StoredHash     string `json:"stored_hash"`
	ComputedHash   string `json:"computed_hash"`
	HashMatches    bool   `json:"hash_matches"`
	LedgerAnchored *bool  `json:"ledger_anchored,omitempty"`
	LedgerError    string `json:"ledger_error,omitempty"`
}

// Verify recomputes the canonical hash from the stored payload. A ledger
// read failure degrades the report instead of failing it; the local hash
// check stands on its own.
func (e *Engine) Verify(ctx context.Context, taskID string) (Verification, error) {
	task, err := e.GetTask(ctx, taskID)
	if err != nil {
		return Verification{}, err
	}
	var payload any
	if err := json.Unmarshal([]byte(task.TaskDataJSON), &payload); err != nil {
		return Verification{}, fmt.Errorf("stored payload is not valid JSON: %w", err)
	}
	computed, _, err := canonical.Sum(payload)
	if err != nil {
		return Verification{}, err
	}
	v := Verification{
		TaskID:        task.ID,
		TransactionID: task.TransactionID,
		StoredHash:    task.TaskHash,
		ComputedHash:  computed,
		HashMatches:   computed == task.TaskHash,
	}
	anchored, err := e.Ledger.HasCommitment(ctx, task.TaskHash)
	if err != nil {
		v.LedgerError = err.Error()
		return v, nil
	}
	v.LedgerAnchored = &anchored
	return v, nil
}
