package enum

// ── Order state machine (CHECK constrained in DB) ──

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

const (
	OrderTypeDineIn   = "dine-in"
	OrderTypeTakeaway = "takeaway"
	OrderTypeOnline   = "online"
)

// ── Payments (CHECK constrained in DB) ──

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

const (
	PaymentMethodCash   = "cash"
	PaymentMethodCard   = "card"
	PaymentMethodOnline = "online"
)

// ── Inventory ledger ──

const (
	UnitKg         = "kg"
	UnitGram       = "gram"
	UnitLitre      = "litre"
	UnitMillilitre = "millilitre"
	UnitPiece      = "piece"
	UnitPack       = "pack"
)

const (
	TransactionTypeAddition = "addition"
	TransactionTypeUsage    = "usage"
)

// ── Analytics ──

const (
	GranularityDaily   = "daily"
	GranularityMonthly = "monthly"
)
