package models

import (
	"math"

	"github.com/medotmani10/windoorpvc/internal/ledger"
)

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

type CompanySettings struct {
	CompanyName string `json:"company_name"`
	LogoURL     string `json:"logo_url"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	TaxID       string `json:"tax_id"`
	FooterText  string `json:"footer_text"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type Client struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Phone     string         `json:"phone"`
	Email     string         `json:"email"`
	Address   string         `json:"address"`
	Category  string         `json:"category"`
	Notes     string         `json:"notes"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	Balance   ledger.Balance `json:"balance"`
	Projects  int            `json:"total_projects"`
}

// StatementEntry is one row of a client account statement.
type StatementEntry struct {
	Date      string  `json:"date"`
	Kind      string  `json:"kind"`
	Reference string  `json:"reference"`
	Debit     float64 `json:"debit"`
	Credit    float64 `json:"credit"`
	Running   float64 `json:"running_due"`
}

type Quote struct {
	ID          string      `json:"id"`
	ClientID    string      `json:"client_id"`
	ClientName  string      `json:"client_name"`
	Date        string      `json:"date"`
	ValidUntil  string      `json:"valid_until"`
	Status      string      `json:"status"`
	Subtotal    float64     `json:"subtotal"`
	Discount    float64     `json:"discount"`
	Tax         float64     `json:"tax"`
	Total       float64     `json:"total"`
	Notes       string      `json:"notes"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
	ConfirmedAt *string     `json:"confirmed_at"`
	Items       []QuoteItem `json:"items"`
}

type QuoteItem struct {
	ID                int      `json:"id"`
	QuoteID           string   `json:"quote_id"`
	Type              string   `json:"type"`
	ProfileType       string   `json:"profile_type"`
	Color             string   `json:"color"`
	Width             float64  `json:"width"`
	Height            float64  `json:"height"`
	Quantity          int      `json:"quantity"`
	GlassType         string   `json:"glass_type"`
	ProfileLength     float64  `json:"profile_length"`
	GlassArea         float64  `json:"glass_area"`
	MaterialPrice     float64  `json:"material_price"`
	AccessoryPrice    *float64 `json:"accessory_price"`
	FabricationPrice  *float64 `json:"fabrication_price"`
	TransportPrice    *float64 `json:"transport_price"`
	InstallationPrice *float64 `json:"installation_price"`
	UnitPriceOverride *float64 `json:"unit_price_override,omitempty"`
	UnitPrice         float64  `json:"unit_price"`
	TotalPrice        float64  `json:"total_price"`
	Description       string   `json:"description"`
}

type Project struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	ClientID     string  `json:"client_id"`
	ClientName   string  `json:"client_name"`
	QuoteID      string  `json:"quote_id"`
	Status       string  `json:"status"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	DeliveryDate string  `json:"delivery_date"`
	TotalPrice   float64 `json:"total_price"`
	PaidAmount   float64 `json:"paid_amount"`
	Remaining    float64 `json:"remaining"`
	Budget       float64 `json:"budget"`
	Expenses     float64 `json:"expenses"`
	Progress     int     `json:"progress"`
	Notes        string  `json:"notes"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type Material struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Unit         string  `json:"unit"`
	Quantity     float64 `json:"quantity"`
	MinQuantity  float64 `json:"min_quantity"`
	CostPrice    float64 `json:"cost_price"`
	SellingPrice float64 `json:"selling_price"`
	Supplier     string  `json:"supplier"`
	LowStock     bool    `json:"low_stock"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type StockMovement struct {
	ID         int     `json:"id"`
	MaterialID string  `json:"material_id"`
	Delta      float64 `json:"delta"`
	Reason     string  `json:"reason"`
	Reference  string  `json:"reference"`
	CreatedAt  string  `json:"created_at"`
}

type Supplier struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Phone        string         `json:"phone"`
	Address      string         `json:"address"`
	MaterialType string         `json:"material_type"`
	Notes        string         `json:"notes"`
	CreatedAt    string         `json:"created_at"`
	Balance      ledger.Balance `json:"balance"`
}

type Purchase struct {
	ID           string  `json:"id"`
	Project      string  `json:"project"`
	Item         string  `json:"item"`
	Quantity     float64 `json:"quantity"`
	Total        float64 `json:"total"`
	SupplierID   string  `json:"supplier_id"`
	SupplierName string  `json:"supplier_name"`
	MaterialID   string  `json:"material_id"`
	Status       string  `json:"status"`
	Date         string  `json:"date"`
	Stocked      bool    `json:"stocked"`
	CreatedAt    string  `json:"created_at"`
}

type Worker struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Trade          string         `json:"trade"`
	Phone          string         `json:"phone"`
	DailyRate      float64        `json:"daily_rate"`
	IsActive       bool           `json:"is_active"`
	CurrentProject string         `json:"current_project"`
	DaysWorked     float64        `json:"total_days_worked"`
	Balance        ledger.Balance `json:"balance"`
	CreatedAt      string         `json:"created_at"`
}

type Attendance struct {
	ID       int    `json:"id"`
	WorkerID string `json:"worker_id"`
	Date     string `json:"date"`
	Morning  bool   `json:"morning"`
	Evening  bool   `json:"evening"`
}

type WorkerPayment struct {
	ID         int     `json:"id"`
	WorkerID   string  `json:"worker_id"`
	WorkerName string  `json:"worker_name,omitempty"`
	Amount     float64 `json:"amount"`
	Date       string  `json:"date"`
	Notes      string  `json:"notes"`
	CreatedAt  string  `json:"created_at"`
}

type Transporter struct {
	ID          string         `json:"id"`
	DriverName  string         `json:"driver_name"`
	VehicleType string         `json:"vehicle_type"`
	Phone       string         `json:"phone"`
	Status      string         `json:"status"`
	CreatedAt   string         `json:"created_at"`
	Balance     ledger.Balance `json:"balance"`
}

type TransportTrip struct {
	ID            int     `json:"id"`
	TransporterID string  `json:"transporter_id"`
	Date          string  `json:"date"`
	Description   string  `json:"description"`
	Project       string  `json:"project"`
	Charge        float64 `json:"charge"`
}

type TransportPayment struct {
	ID            int     `json:"id"`
	TransporterID string  `json:"transporter_id"`
	Amount        float64 `json:"amount"`
	Date          string  `json:"date"`
	Notes         string  `json:"notes"`
	TransactionID string  `json:"transaction_id"`
}

type Invoice struct {
	ID            string        `json:"id"`
	InvoiceNumber string        `json:"invoice_number"`
	Type          string        `json:"type"`
	ClientID      string        `json:"client_id"`
	ClientName    string        `json:"client_name"`
	QuoteID       string        `json:"quote_id"`
	Discount      float64       `json:"discount"`
	Amount        float64       `json:"amount"`
	Tax           float64       `json:"tax"`
	Total         float64       `json:"total"`
	Date          string        `json:"date"`
	DueDate       string        `json:"due_date"`
	Status        string        `json:"status"`
	Notes         string        `json:"notes"`
	CreatedAt     string        `json:"created_at"`
	PaidAt        *string       `json:"paid_at"`
	FinalizedAt   *string       `json:"finalized_at"`
	Items         []InvoiceItem `json:"items"`
}

// Subtotal is the sum of the lines before the discount.
func (i Invoice) Subtotal() float64 {
	return math.Round((i.Amount+i.Discount)*100) / 100
}

type InvoiceItem struct {
	ID          int     `json:"id"`
	InvoiceID   string  `json:"invoice_id"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

type Transaction struct {
	ID            string  `json:"id"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	Type          string  `json:"type"`
	Category      string  `json:"category"`
	Date          string  `json:"date"`
	Method        string  `json:"method"`
	Status        string  `json:"status"`
	ClientID      string  `json:"client_id"`
	SupplierID    string  `json:"supplier_id"`
	TransporterID string  `json:"transporter_id"`
	InvoiceID     string  `json:"invoice_id"`
	ReadOnly      bool    `json:"read_only,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type FinanceSummary struct {
	Balance        float64 `json:"balance"`
	TotalIncome    float64 `json:"total_income"`
	TotalExpense   float64 `json:"total_expense"`
	MonthlyIncome  float64 `json:"monthly_income"`
	MonthlyExpense float64 `json:"monthly_expense"`
	ClientDebt     float64 `json:"client_debt"`
	SupplierDebt   float64 `json:"supplier_debt"`
}

type MonthPoint struct {
	Month   int     `json:"month"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

type DashboardData struct {
	ActiveProjects int          `json:"active_projects"`
	Workers        int          `json:"workers"`
	Revenue        float64      `json:"revenue"`
	Expenses       float64      `json:"expenses"`
	NetProfit      float64      `json:"net_profit"`
	LowStock       int          `json:"low_stock"`
	Monthly        []MonthPoint `json:"monthly"`
	RecentProjects []Project    `json:"recent_projects"`
}

type AuditEntry struct {
	ID          int    `json:"id"`
	UserID      int    `json:"user_id,omitempty"`
	Username    string `json:"username"`
	Action      string `json:"action"`
	Module      string `json:"module"`
	RecordID    string `json:"record_id"`
	Summary     string `json:"summary"`
	BeforeValue string `json:"before_value,omitempty"`
	AfterValue  string `json:"after_value,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type User struct {
	ID          int     `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	Active      bool    `json:"active"`
	LastLogin   *string `json:"last_login"`
	CreatedAt   string  `json:"created_at"`
}
