package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
	FieldUserID     = "user_id"
	FieldProjectID  = "project_id"
	FieldExpenseID  = "expense_id"
	FieldCollection = "collection"
	FieldTotalCents = "total_cents"
)

// Standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentSession  = "session"
	ComponentStore    = "store"
	ComponentLedger   = "ledger"
	ComponentAMQP     = "amqp"
	ComponentIdentity = "identity"
)
