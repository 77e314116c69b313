package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskanchor/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey surfaces a storage-level uniqueness violation. The
	// unique index on transaction_id is the arbiter for concurrent creates,
	// not the application pre-check.
	ErrDuplicateKey = errors.New("duplicate key")
)

func mapInsertErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

const taskColumns = `id,transaction_id,task_type,task_data_json,task_hash,ledger_tx_ref,state,priority,chain,platform,details,owner_id,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TransactionID, t.TaskType, t.TaskDataJSON, t.TaskHash, t.LedgerTxRef, t.State,
		nullableStringPtr(t.Priority), nullableStringPtr(t.Chain), nullableStringPtr(t.Platform), nullableStringPtr(t.Details),
		t.OwnerID, t.CreatedAt, t.UpdatedAt)
	return mapInsertErr(err)
}

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var priority, chain, platform, details sql.NullString
	err := scan(&t.ID, &t.TransactionID, &t.TaskType, &t.TaskDataJSON, &t.TaskHash, &t.LedgerTxRef, &t.State,
		&priority, &chain, &platform, &details, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if priority.Valid {
		t.Priority = &priority.String
	}
	if chain.Valid {
		t.Chain = &chain.String
	}
	if platform.Valid {
		t.Platform = &platform.String
	}
	if details.Valid {
		t.Details = &details.String
	}
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskByTransactionID(ctx context.Context, transactionID string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE transaction_id=?`, transactionID)
	return scanTask(row.Scan)
}

// TaskFilters narrows ListTasks. Search matches transaction id, task hash or
// ledger tx ref. From/To bound created_at (RFC3339, inclusive).
type TaskFilters struct {
	TaskType string
	State    string
	Search   string
	From     string
	To       string
	OwnerID  string
	Limit    int
	Offset   int
}

func (f TaskFilters) where() (string, []any) {
	var clauses []string
	var args []any
	if f.TaskType != "" {
		clauses = append(clauses, "task_type=?")
		args = append(args, f.TaskType)
	}
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.Search != "" {
		clauses = append(clauses, "(transaction_id LIKE ? OR task_hash LIKE ? OR ledger_tx_ref LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if f.From != "" {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.To)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	where, args := f.where()
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasks(ctx context.Context, f TaskFilters) (int, error) {
	where, args := f.where()
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM tasks `+where, args...).Scan(&count)
	return count, err
}

// SetTaskState transitions a task and bumps updated_at. Task payload, hash
// and ledger reference are immutable after creation, so state and timestamp
// are the only writable columns.
func (r Repo) SetTaskState(ctx context.Context, tx *sql.Tx, id, state, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET state=?, updated_at=? WHERE id=?`, state, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertProof(ctx context.Context, tx *sql.Tx, p domain.ExecutionProof) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO execution_proofs(id,task_id,proof_type,proof_value,file_name,file_size,mime_type,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.TaskID, p.ProofType, p.ProofValue, nullableStringPtr(p.FileName), nullableInt64Ptr(p.FileSize), nullableStringPtr(p.MimeType), p.CreatedAt)
	return mapInsertErr(err)
}

func (r Repo) ListProofs(ctx context.Context, taskID string) ([]domain.ExecutionProof, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,proof_type,proof_value,file_name,file_size,mime_type,created_at FROM execution_proofs WHERE task_id=? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ExecutionProof
	for rows.Next() {
		var p domain.ExecutionProof
		var fileName, mimeType sql.NullString
		var fileSize sql.NullInt64
		if err := rows.Scan(&p.ID, &p.TaskID, &p.ProofType, &p.ProofValue, &fileName, &fileSize, &mimeType, &p.CreatedAt); err != nil {
			return nil, err
		}
		if fileName.Valid {
			p.FileName = &fileName.String
		}
		if fileSize.Valid {
			p.FileSize = &fileSize.Int64
		}
		if mimeType.Valid {
			p.MimeType = &mimeType.String
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
