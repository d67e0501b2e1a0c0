package validation

// Enum values. These MUST match the CHECK constraints in internal/database/schema.go.
var (
	ValidClientCategories    = []string{"vip", "regular", "new"}
	ValidQuoteStatuses       = []string{"draft", "confirmed", "rejected", "expired"}
	ValidProjectStatuses     = []string{"active", "pending", "completed", "delayed"}
	ValidPurchaseStatuses    = []string{"ordered", "shipping", "received"}
	ValidTransporterStatuses = []string{"active", "inactive"}
	ValidInvoiceTypes        = []string{"proforma", "final"}
	ValidInvoiceStatuses     = []string{"draft", "pending", "paid", "overdue", "cancelled"}
	ValidTransactionTypes    = []string{"income", "expense"}
	ValidTransactionStatuses = []string{"completed", "pending"}
	ValidPaymentMethods      = []string{"cash", "cheque", "transfer", "ccp"}
	ValidRoles               = []string{"admin", "staff", "readonly"}
	ValidAttendanceHalves    = []string{"morning", "evening"}
	ValidMaterialUnits       = []string{"piece", "m", "m2", "kg", "bar", "box", "roll", "l"}
	ValidLogoContentTypes    = []string{"image/png", "image/jpeg", "image/webp", "image/svg+xml"}
	ValidExpenseCategories   = []string{"materials", "salary", "transport", "rent", "utilities", "tools", "other"}
	ValidIncomeCategories    = []string{"client_payment", "advance", "other"}
)
