package domain

// Task states. Blocked and cancelled are set only through moderation.
const (
	StateStored    = "stored"
	StateExecuted  = "executed"
	StateBlocked   = "blocked"
	StateCancelled = "cancelled"
)

// Task types, a closed set. Each type has its own normalizer.
const (
	TypeLiquidation   = "liquidation"
	TypeAcquisition   = "acquisition"
	TypeAuthorization = "authorization"
	TypeArbitrage     = "arbitrage"
	TypeVault         = "vault"
)

// User roles. Admin and consultant map to an on-chain role grant,
// member maps to a revoke.
const (
	RoleAdmin      = "admin"
	RoleConsultant = "consultant"
	RoleMember     = "member"
)

// Proof types.
const (
	ProofText  = "text"
	ProofImage = "image"
)

func ValidState(s string) bool {
	switch s {
	case StateStored, StateExecuted, StateBlocked, StateCancelled:
		return true
	}
	return false
}

func ValidTaskType(t string) bool {
	switch t {
	case TypeLiquidation, TypeAcquisition, TypeAuthorization, TypeArbitrage, TypeVault:
		return true
	}
	return false
}

func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleConsultant, RoleMember:
		return true
	}
	return false
}

// PrivilegedRole reports whether a role carries the on-chain store role.
func PrivilegedRole(r string) bool {
	return r == RoleAdmin || r == RoleConsultant
}

// Task is the unit of committed work. TaskDataJSON holds the normalized
// payload verbatim; TaskHash is the canonical SHA-256 of that payload,
// computed once at creation and recomputed only for audit.
type Task struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transaction_id"`
	TaskType      string  `json:"task_type" enum:"liquidation,acquisition,authorization,arbitrage,vault"`
	TaskDataJSON  string  `json:"task_data_json"`
	TaskHash      string  `json:"task_hash"`
	LedgerTxRef   string  `json:"ledger_tx_ref"`
	State         string  `json:"state" enum:"stored,executed,blocked,cancelled"`
	Priority      *string `json:"priority,omitempty"`
	Chain         *string `json:"chain,omitempty"`
	Platform      *string `json:"platform,omitempty"`
	Details       *string `json:"details,omitempty"`
	OwnerID       string  `json:"owner_id"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

// ExecutionProof is evidence attached when a task is executed. Image proofs
// store a reference to the object, never the bytes.
type ExecutionProof struct {
	ID         string  `json:"id"`
	TaskID     string  `json:"task_id"`
	ProofType  string  `json:"proof_type" enum:"text,image"`
	ProofValue string  `json:"proof_value"`
	FileName   *string `json:"file_name,omitempty"`
	FileSize   *int64  `json:"file_size,omitempty"`
	MimeType   *string `json:"mime_type,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

// User ties an application role to a ledger account address.
type User struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Role      string `json:"role" enum:"admin,consultant,member"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// APIKey authenticates non-interactive operators.
type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Event is one row of the append-only audit log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
