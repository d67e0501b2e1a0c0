// Package common serves cross-module endpoints: spreadsheet exports and
// the global search box.
package common

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/handlers/clients"
	"github.com/medotmani10/windoorpvc/internal/handlers/finance"
	"github.com/medotmani10/windoorpvc/internal/handlers/inventory"
	"github.com/medotmani10/windoorpvc/internal/handlers/procurement"
	"github.com/medotmani10/windoorpvc/internal/handlers/sales"
	"github.com/medotmani10/windoorpvc/internal/handlers/workforce"
	"github.com/medotmani10/windoorpvc/internal/response"
)

// Handler holds dependencies for export and search handlers.
type Handler struct {
	DB    *sql.DB
	Audit *audit.Recorder
}

// Table is a sheet of export rows. Cells are strings or float64.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// WriteCSV writes t as UTF-8 CSV with a byte order mark so spreadsheet
// programs detect the Arabic text.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	record := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = cellString(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes t as a single right-to-left worksheet.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Name
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}
	rtl := true
	if err := f.SetSheetView(sheet, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, header := range t.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}
	for r, row := range t.Rows {
		for c, value := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cell, value)
		}
	}
	if len(t.Headers) > 0 {
		last, _ := excelize.ColumnNumberToName(len(t.Headers))
		f.SetColWidth(sheet, "A", last, 18)
	}
	return f.Write(w)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request, module string, t Table) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		response.Err(w, "format must be csv or xlsx", 400)
		return
	}

	h.Audit.Record(r, audit.ActionExport, module, format, fmt.Sprintf("تصدير %d سطر (%s)", len(t.Rows), format))

	filename := module + "." + format
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if format == "xlsx" {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := WriteXLSX(w, t); err != nil {
			http.Error(w, "Failed to write Excel file", 500)
		}
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	if err := WriteCSV(w, t); err != nil {
		http.Error(w, "Failed to write CSV", 500)
	}
}

// ClientsTable lists clients with what they owe.
func ClientsTable(db *sql.DB, search, category string) (Table, error) {
	list, err := clients.Query(db, search, category)
	if err != nil {
		return Table{}, err
	}
	t := Table{
		Name:    "Clients",
		Headers: []string{"المعرف", "الاسم", "الهاتف", "البريد", "العنوان", "الفئة", "المشاريع", "المفوتر", "المدفوع", "الباقي"},
	}
	for _, c := range list {
		t.Rows = append(t.Rows, []interface{}{c.ID, c.Name, c.Phone, c.Email, c.Address, c.Category,
			float64(c.Projects), c.Balance.Billed, c.Balance.Paid, c.Balance.Due})
	}
	return t, nil
}

// ExportClients handles GET /api/v1/export/clients.
func (h *Handler) ExportClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := ClientsTable(h.DB, q.Get("search"), q.Get("category"))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.send(w, r, "clients", t)
}

// ExportSuppliers handles GET /api/v1/export/suppliers.
func (h *Handler) ExportSuppliers(w http.ResponseWriter, r *http.Request) {
	list, err := procurement.QuerySuppliers(h.DB, r.URL.Query().Get("search"))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	t := Table{
		Name:    "Suppliers",
		Headers: []string{"المعرف", "الاسم", "الهاتف", "العنوان", "نوع المواد", "المشتريات", "المدفوع", "الباقي"},
	}
	for _, s := range list {
		t.Rows = append(t.Rows, []interface{}{s.ID, s.Name, s.Phone, s.Address, s.MaterialType,
			s.Balance.Billed, s.Balance.Paid, s.Balance.Due})
	}
	h.send(w, r, "suppliers", t)
}

// ExportInvoices handles GET /api/v1/export/invoices.
func (h *Handler) ExportInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := sales.QueryInvoices(h.DB, q.Get("status"), q.Get("type"), q.Get("client_id"), q.Get("from"), q.Get("to"))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	t := Table{
		Name:    "Invoices",
		Headers: []string{"الرقم", "النوع", "الزبون", "التاريخ", "الاستحقاق", "المبلغ", "الضريبة", "المجموع", "الحالة"},
	}
	for _, inv := range list {
		t.Rows = append(t.Rows, []interface{}{inv.InvoiceNumber, inv.Type, inv.ClientName, inv.Date, inv.DueDate,
			inv.Amount, inv.Tax, inv.Total, inv.Status})
	}
	h.send(w, r, "invoices", t)
}

// ExportTransactions handles GET /api/v1/export/transactions. It accepts
// the same filters as the transaction list.
func (h *Handler) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := finance.Query(h.DB, finance.FilterFromRequest(r))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	t := Table{
		Name:    "Transactions",
		Headers: []string{"المعرف", "التاريخ", "البيان", "النوع", "الفئة", "طريقة الدفع", "المبلغ"},
	}
	for _, tr := range list {
		t.Rows = append(t.Rows, []interface{}{tr.ID, tr.Date, tr.Description, tr.Type, tr.Category, tr.Method, tr.Amount})
	}
	h.send(w, r, "transactions", t)
}

// ExportMaterials handles GET /api/v1/export/materials.
func (h *Handler) ExportMaterials(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := inventory.Query(h.DB, q.Get("search"), q.Get("category"), q.Get("low_stock") == "true")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	t := Table{
		Name:    "Materials",
		Headers: []string{"المعرف", "المادة", "الفئة", "الوحدة", "الكمية", "الحد الأدنى", "سعر الشراء", "سعر البيع", "المورد"},
	}
	for _, m := range list {
		t.Rows = append(t.Rows, []interface{}{m.ID, m.Name, m.Category, m.Unit, m.Quantity, m.MinQuantity,
			m.CostPrice, m.SellingPrice, m.Supplier})
	}
	h.send(w, r, "materials", t)
}

// ExportWorkers handles GET /api/v1/export/workers.
func (h *Handler) ExportWorkers(w http.ResponseWriter, r *http.Request) {
	list, err := workforce.QueryWorkers(h.DB, r.URL.Query().Get("search"), r.URL.Query().Get("active") == "true")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	t := Table{
		Name:    "Workers",
		Headers: []string{"المعرف", "العامل", "الحرفة", "الهاتف", "الأجر اليومي", "أيام العمل", "المستحق", "المدفوع", "الباقي"},
	}
	for _, wk := range list {
		t.Rows = append(t.Rows, []interface{}{wk.ID, wk.Name, wk.Trade, wk.Phone, wk.DailyRate, wk.DaysWorked,
			wk.Balance.Billed, wk.Balance.Paid, wk.Balance.Due})
	}
	h.send(w, r, "workers", t)
}
