package reports

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/medotmani10/windoorpvc/internal/handlers/finance"
	"github.com/medotmani10/windoorpvc/internal/handlers/procurement"
	"github.com/medotmani10/windoorpvc/internal/handlers/projects"
	"github.com/medotmani10/windoorpvc/internal/handlers/workforce"
	"github.com/medotmani10/windoorpvc/internal/ledger"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/printing"
	"github.com/medotmani10/windoorpvc/internal/response"
)

// respond writes payload as JSON, or rep as a printable page when
// ?format=html. ?print=1 adds the auto-print script.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, payload interface{}, rep printing.Report) {
	if r.URL.Query().Get("format") != "html" {
		response.JSON(w, payload)
		return
	}
	if h.Printer == nil {
		response.Err(w, "printing is not configured", 503)
		return
	}
	company, err := printing.LoadCompany(h.DB)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	body, err := h.Printer.ReportHTML(company, rep, r.URL.Query().Get("print") == "1")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.HTML(w, body)
}

func period(from, to string) string {
	switch {
	case from != "" && to != "":
		return from + " → " + to
	case from != "":
		return "من " + from
	case to != "":
		return "إلى " + to
	}
	return ""
}

// ProjectsReport summarises projects and what remains to collect.
type ProjectsReport struct {
	Count       int              `json:"count"`
	TotalValue  float64          `json:"total_value"`
	Paid        float64          `json:"paid"`
	Remaining   float64          `json:"remaining"`
	AvgProgress float64          `json:"avg_progress"`
	ByStatus    map[string]int   `json:"by_status"`
	Projects    []models.Project `json:"projects"`
}

// ReportProjects handles GET /api/v1/reports/projects.
func (h *Handler) ReportProjects(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	list, err := projects.Query(h.DB, status, "", 0)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	rep := ProjectsReport{Count: len(list), ByStatus: map[string]int{}, Projects: list}
	balances := make([]ledger.Balance, len(list))
	progress := 0
	for i, p := range list {
		balances[i] = ledger.Compute(p.TotalPrice, p.PaidAmount)
		rep.ByStatus[p.Status]++
		progress += p.Progress
	}
	agg := ledger.Aggregate(balances)
	rep.TotalValue, rep.Paid, rep.Remaining = agg.Billed, agg.Paid, agg.Outstanding
	if len(list) > 0 {
		rep.AvgProgress = float64(progress*10/len(list)) / 10
	}

	doc := printing.Report{
		Title:  "تقرير المشاريع",
		Period: status,
		Stats: []printing.Stat{
			{Label: "عدد المشاريع", Value: strconv.Itoa(rep.Count)},
			{Label: "القيمة الإجمالية", Value: printing.Money(rep.TotalValue)},
			{Label: "المدفوع", Value: printing.Money(rep.Paid)},
			{Label: "المتبقي", Value: printing.Money(rep.Remaining)},
		},
		Columns: []string{"المشروع", "الزبون", "الحالة", "القيمة", "المدفوع", "المتبقي", "التقدم"},
	}
	for _, p := range list {
		doc.Rows = append(doc.Rows, []string{p.Name, p.ClientName, p.Status, printing.Money(p.TotalPrice),
			printing.Money(p.PaidAmount), printing.Money(p.Remaining), fmt.Sprintf("%d%%", p.Progress)})
	}
	h.respond(w, r, rep, doc)
}

// FinanceReport lists transactions over a period with their totals.
type FinanceReport struct {
	Income       float64              `json:"income"`
	Expense      float64              `json:"expense"`
	Balance      float64              `json:"balance"`
	ByCategory   map[string]float64   `json:"by_category"`
	Transactions []models.Transaction `json:"transactions"`
}

// ReportFinance handles GET /api/v1/reports/finance?from=&to=.
func (h *Handler) ReportFinance(w http.ResponseWriter, r *http.Request) {
	f := finance.FilterFromRequest(r)
	list, err := finance.Query(h.DB, f)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	rep := FinanceReport{ByCategory: map[string]float64{}, Transactions: list}
	for _, t := range list {
		if t.Type == "income" {
			rep.Income = ledger.Sum(rep.Income, t.Amount)
		} else {
			rep.Expense = ledger.Sum(rep.Expense, t.Amount)
		}
		rep.ByCategory[t.Category] = ledger.Sum(rep.ByCategory[t.Category], t.Amount)
	}
	rep.Balance = ledger.Compute(rep.Income, rep.Expense).Due

	doc := printing.Report{
		Title:  "التقرير المالي",
		Period: period(f.From, f.To),
		Stats: []printing.Stat{
			{Label: "المداخيل", Value: printing.Money(rep.Income)},
			{Label: "المصاريف", Value: printing.Money(rep.Expense)},
			{Label: "الرصيد", Value: printing.Money(rep.Balance)},
		},
		Columns: []string{"التاريخ", "البيان", "النوع", "الفئة", "المبلغ"},
	}
	for _, t := range list {
		doc.Rows = append(doc.Rows, []string{t.Date, t.Description, t.Type, t.Category, printing.Money(t.Amount)})
	}
	h.respond(w, r, rep, doc)
}

// PurchasesReport totals purchases over a period.
type PurchasesReport struct {
	Count     int               `json:"count"`
	Total     float64           `json:"total"`
	Received  float64           `json:"received"`
	Pending   float64           `json:"pending"`
	Purchases []models.Purchase `json:"purchases"`
}

// ReportPurchases handles GET /api/v1/reports/purchases.
func (h *Handler) ReportPurchases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	list, err := procurement.QueryPurchases(h.DB, q.Get("status"), q.Get("supplier_id"), from, to)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	rep := PurchasesReport{Count: len(list), Purchases: list}
	for _, p := range list {
		rep.Total = ledger.Sum(rep.Total, p.Total)
		if p.Status == "received" {
			rep.Received = ledger.Sum(rep.Received, p.Total)
		} else {
			rep.Pending = ledger.Sum(rep.Pending, p.Total)
		}
	}

	doc := printing.Report{
		Title:  "تقرير المشتريات",
		Period: period(from, to),
		Stats: []printing.Stat{
			{Label: "عدد الطلبيات", Value: strconv.Itoa(rep.Count)},
			{Label: "المجموع", Value: printing.Money(rep.Total)},
			{Label: "المستلم", Value: printing.Money(rep.Received)},
			{Label: "قيد الانتظار", Value: printing.Money(rep.Pending)},
		},
		Columns: []string{"التاريخ", "المادة", "المورد", "الكمية", "المبلغ", "الحالة"},
	}
	for _, p := range list {
		doc.Rows = append(doc.Rows, []string{p.Date, p.Item, p.SupplierName,
			strconv.FormatFloat(p.Quantity, 'f', -1, 64), printing.Money(p.Total), p.Status})
	}
	h.respond(w, r, rep, doc)
}

// WorkersReport lists worker balances.
type WorkersReport struct {
	Workers    []models.Worker `json:"workers"`
	DaysWorked float64         `json:"days_worked"`
	Totals     ledger.Totals   `json:"totals"`
}

// ReportWorkers handles GET /api/v1/reports/workers.
func (h *Handler) ReportWorkers(w http.ResponseWriter, r *http.Request) {
	list, err := workforce.QueryWorkers(h.DB, "", r.URL.Query().Get("active") == "true")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	rep := WorkersReport{Workers: list}
	balances := make([]ledger.Balance, len(list))
	for i, wk := range list {
		balances[i] = wk.Balance
		rep.DaysWorked += wk.DaysWorked
	}
	rep.Totals = ledger.Aggregate(balances)

	doc := printing.Report{
		Title: "تقرير العمال",
		Stats: []printing.Stat{
			{Label: "عدد العمال", Value: strconv.Itoa(len(list))},
			{Label: "المستحق", Value: printing.Money(rep.Totals.Billed)},
			{Label: "المدفوع", Value: printing.Money(rep.Totals.Paid)},
			{Label: "الباقي للعمال", Value: printing.Money(rep.Totals.Outstanding)},
			{Label: "التسبيقات", Value: printing.Money(rep.Totals.Advance)},
		},
		Columns: []string{"العامل", "الحرفة", "الأجر اليومي", "أيام العمل", "المستحق", "المدفوع", "الباقي"},
	}
	for _, wk := range list {
		doc.Rows = append(doc.Rows, []string{wk.Name, wk.Trade, printing.Money(wk.DailyRate),
			strconv.FormatFloat(wk.DaysWorked, 'f', -1, 64), printing.Money(wk.Balance.Billed),
			printing.Money(wk.Balance.Paid), printing.Money(wk.Balance.Due)})
	}
	h.respond(w, r, rep, doc)
}
