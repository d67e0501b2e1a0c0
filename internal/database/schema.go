package database

import (
	"context"
	"database/sql"
	"fmt"
)

var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		email TEXT DEFAULT '',
		role TEXT NOT NULL DEFAULT 'staff' CHECK(role IN ('admin','staff','readonly')),
		active INTEGER DEFAULT 1,
		failed_login_attempts INTEGER DEFAULT 0,
		locked_until DATETIME,
		last_login DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME NOT NULL,
		last_activity DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS csrf_tokens (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role TEXT NOT NULL,
		module TEXT NOT NULL,
		action TEXT NOT NULL,
		UNIQUE(role, module, action)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER,
		username TEXT DEFAULT 'system',
		action TEXT NOT NULL,
		module TEXT NOT NULL,
		record_id TEXT DEFAULT '',
		summary TEXT DEFAULT '',
		before_value TEXT,
		after_value TEXT,
		ip_address TEXT DEFAULT '',
		user_agent TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS company_settings (
		id INTEGER PRIMARY KEY CHECK(id = 1),
		company_name TEXT NOT NULL DEFAULT '',
		logo_url TEXT DEFAULT '',
		address TEXT DEFAULT '',
		phone TEXT DEFAULT '',
		email TEXT DEFAULT '',
		tax_id TEXT DEFAULT '',
		footer_text TEXT DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT DEFAULT '',
		email TEXT DEFAULT '',
		address TEXT DEFAULT '',
		category TEXT DEFAULT 'new' CHECK(category IN ('vip','regular','new')),
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS quotes (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		date TEXT NOT NULL,
		valid_until TEXT NOT NULL,
		status TEXT DEFAULT 'draft' CHECK(status IN ('draft','confirmed','rejected','expired')),
		subtotal REAL DEFAULT 0 CHECK(subtotal >= 0),
		discount REAL DEFAULT 0 CHECK(discount >= 0),
		tax REAL DEFAULT 0 CHECK(tax >= 0),
		total REAL DEFAULT 0 CHECK(total >= 0),
		notes TEXT DEFAULT '',
		created_by TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		confirmed_at DATETIME,
		FOREIGN KEY (client_id) REFERENCES clients(id) ON DELETE RESTRICT
	)`,
	`CREATE TABLE IF NOT EXISTS quote_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quote_id TEXT NOT NULL,
		type TEXT DEFAULT '',
		profile_type TEXT NOT NULL,
		color TEXT DEFAULT '',
		width REAL NOT NULL CHECK(width > 0),
		height REAL NOT NULL CHECK(height > 0),
		quantity INTEGER NOT NULL CHECK(quantity > 0),
		glass_type TEXT NOT NULL,
		profile_length REAL DEFAULT 0,
		glass_area REAL DEFAULT 0,
		material_price REAL DEFAULT 0,
		accessory_price REAL DEFAULT 0,
		fabrication_price REAL DEFAULT 0,
		transport_price REAL DEFAULT 0,
		installation_price REAL DEFAULT 0,
		unit_price_override REAL,
		unit_price REAL NOT NULL CHECK(unit_price >= 0),
		total_price REAL NOT NULL CHECK(total_price >= 0),
		description TEXT DEFAULT '',
		FOREIGN KEY (quote_id) REFERENCES quotes(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		client_id TEXT NOT NULL,
		quote_id TEXT DEFAULT '',
		status TEXT DEFAULT 'pending' CHECK(status IN ('active','pending','completed','delayed')),
		start_date TEXT DEFAULT '',
		end_date TEXT DEFAULT '',
		delivery_date TEXT DEFAULT '',
		total_price REAL DEFAULT 0 CHECK(total_price >= 0),
		paid_amount REAL DEFAULT 0 CHECK(paid_amount >= 0),
		budget REAL DEFAULT 0 CHECK(budget >= 0),
		expenses REAL DEFAULT 0 CHECK(expenses >= 0),
		progress INTEGER DEFAULT 0 CHECK(progress BETWEEN 0 AND 100),
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (client_id) REFERENCES clients(id) ON DELETE RESTRICT
	)`,
	`CREATE TABLE IF NOT EXISTS materials (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT DEFAULT '',
		unit TEXT DEFAULT 'piece',
		quantity REAL DEFAULT 0 CHECK(quantity >= 0),
		min_quantity REAL DEFAULT 0 CHECK(min_quantity >= 0),
		cost_price REAL DEFAULT 0 CHECK(cost_price >= 0),
		selling_price REAL DEFAULT 0 CHECK(selling_price >= 0),
		supplier TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		material_id TEXT NOT NULL,
		delta REAL NOT NULL,
		reason TEXT DEFAULT '',
		reference TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (material_id) REFERENCES materials(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT DEFAULT '',
		address TEXT DEFAULT '',
		material_type TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		project TEXT DEFAULT '',
		item TEXT NOT NULL,
		quantity REAL DEFAULT 1 CHECK(quantity > 0),
		total REAL DEFAULT 0 CHECK(total >= 0),
		supplier_id TEXT NOT NULL,
		material_id TEXT DEFAULT '',
		status TEXT DEFAULT 'ordered' CHECK(status IN ('ordered','shipping','received')),
		date TEXT NOT NULL,
		stocked INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (supplier_id) REFERENCES suppliers(id) ON DELETE RESTRICT
	)`,
	`CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		trade TEXT DEFAULT '',
		phone TEXT DEFAULT '',
		daily_rate REAL DEFAULT 0 CHECK(daily_rate >= 0),
		is_active INTEGER DEFAULT 1,
		current_project TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		worker_id TEXT NOT NULL,
		date TEXT NOT NULL,
		morning INTEGER DEFAULT 0,
		evening INTEGER DEFAULT 0,
		UNIQUE(worker_id, date),
		FOREIGN KEY (worker_id) REFERENCES workers(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS worker_payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		worker_id TEXT NOT NULL,
		amount REAL NOT NULL CHECK(amount > 0),
		date TEXT NOT NULL,
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (worker_id) REFERENCES workers(id) ON DELETE RESTRICT
	)`,
	`CREATE TABLE IF NOT EXISTS transporters (
		id TEXT PRIMARY KEY,
		driver_name TEXT NOT NULL,
		vehicle_type TEXT DEFAULT '',
		phone TEXT DEFAULT '',
		status TEXT DEFAULT 'active' CHECK(status IN ('active','inactive')),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS transport_trips (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transporter_id TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT DEFAULT '',
		project TEXT DEFAULT '',
		charge REAL NOT NULL CHECK(charge >= 0),
		FOREIGN KEY (transporter_id) REFERENCES transporters(id) ON DELETE RESTRICT
	)`,
	`CREATE TABLE IF NOT EXISTS transport_payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transporter_id TEXT NOT NULL,
		amount REAL NOT NULL CHECK(amount > 0),
		date TEXT NOT NULL,
		notes TEXT DEFAULT '',
		transaction_id TEXT DEFAULT '',
		FOREIGN KEY (transporter_id) REFERENCES transporters(id) ON DELETE RESTRICT
	)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL CHECK(type IN ('proforma','final')),
		client_id TEXT NOT NULL,
		quote_id TEXT DEFAULT '',
		discount REAL DEFAULT 0 CHECK(discount >= 0),
		amount REAL DEFAULT 0 CHECK(amount >= 0),
		tax REAL DEFAULT 0 CHECK(tax >= 0),
		total REAL DEFAULT 0 CHECK(total >= 0),
		date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('draft','pending','paid','overdue','cancelled')),
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		paid_at DATETIME,
		finalized_at DATETIME,
		FOREIGN KEY (client_id) REFERENCES clients(id) ON DELETE RESTRICT
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id TEXT NOT NULL,
		description TEXT NOT NULL,
		unit TEXT DEFAULT 'piece',
		quantity REAL NOT NULL CHECK(quantity > 0),
		unit_price REAL NOT NULL CHECK(unit_price >= 0),
		total REAL NOT NULL CHECK(total >= 0),
		FOREIGN KEY (invoice_id) REFERENCES invoices(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		description TEXT DEFAULT '',
		amount REAL NOT NULL CHECK(amount > 0),
		type TEXT NOT NULL CHECK(type IN ('income','expense')),
		category TEXT DEFAULT '',
		date TEXT NOT NULL,
		method TEXT DEFAULT 'cash',
		status TEXT DEFAULT 'completed' CHECK(status IN ('completed','pending')),
		client_id TEXT DEFAULT '',
		supplier_id TEXT DEFAULT '',
		transporter_id TEXT DEFAULT '',
		invoice_id TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_module ON audit_log(module, record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_quotes_client ON quotes(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_quote_items_quote ON quote_items(quote_id)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_client ON projects(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_material ON stock_movements(material_id)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_supplier ON purchases(supplier_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_worker ON attendance(worker_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_worker_payments_worker ON worker_payments(worker_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trips_transporter ON transport_trips(transporter_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transport_payments_transporter ON transport_payments(transporter_id)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_client ON invoices(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status, due_date)`,
	`CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice ON invoice_items(invoice_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_client ON transactions(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_supplier ON transactions(supplier_id)`,
}

// Columns added after a table first shipped. Databases created before the
// column existed get it on the next start.
var alterStmts = []string{
	"ALTER TABLE invoices ADD COLUMN discount REAL DEFAULT 0",
}

// Migrate creates every table and index that does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, ddl := range tables {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %.80s", err, ddl)
		}
	}
	for _, s := range alterStmts {
		db.ExecContext(ctx, s) // fails once the column exists
	}
	for _, ddl := range indexes {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("index migration failed: %w", err)
		}
	}
	return nil
}

// Tables lists the tables Migrate creates, in creation order.
func Tables() []string {
	names := make([]string, 0, len(tables))
	for _, ddl := range tables {
		var name string
		fmt.Sscanf(ddl, "CREATE TABLE IF NOT EXISTS %s", &name)
		names = append(names, name)
	}
	return names
}
