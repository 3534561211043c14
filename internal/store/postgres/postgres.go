package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"medishop/backend/internal/domain"
	"medishop/backend/internal/store"
	"medishop/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, batch_no, quantity, price, expiry_date, created_at, updated_at
		FROM items
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanItems(rows)
}

func (s *Store) SearchItems(ctx context.Context, query string, limit int) ([]domain.Item, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, batch_no, quantity, price, expiry_date, created_at, updated_at
		FROM items
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanItems(rows)
}

func (s *Store) GetItemByID(ctx context.Context, id string) (*domain.Item, error) {
	return s.getItem(ctx, "id", id)
}

func (s *Store) GetItemByBatchNo(ctx context.Context, batchNo string) (*domain.Item, error) {
	return s.getItem(ctx, "batch_no", batchNo)
}

func (s *Store) getItem(ctx context.Context, column string, value string) (*domain.Item, error) {
	var item domain.Item
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, batch_no, quantity, price, expiry_date, created_at, updated_at
		FROM items
		WHERE `+column+` = $1
	`, value).Scan(&item.ID, &item.Name, &item.BatchNo, &item.Quantity, &item.Price, &item.ExpiryDate, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.Name == "" || item.BatchNo == "" || item.Quantity < 0 || item.Price.IsNegative() {
		return nil, store.ErrValidation
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, batch_no, quantity, price, expiry_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, item.ID, item.Name, item.BatchNo, item.Quantity, item.Price, item.ExpiryDate, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.ID == "" || item.Name == "" || item.BatchNo == "" || item.Quantity < 0 || item.Price.IsNegative() {
		return nil, store.ErrValidation
	}

	item.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET name = $2, batch_no = $3, quantity = $4, price = $5, expiry_date = $6, updated_at = $7
		WHERE id = $1
	`, item.ID, item.Name, item.BatchNo, item.Quantity, item.Price, item.ExpiryDate, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := item
	return &updated, nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateSale writes the sale and decrements stock for every line in a single
// serializable transaction. Item rows are locked up front; a line that would
// drive quantity negative rolls the whole transaction back.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.InvoiceNo == "" || len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	itemIDs := make([]string, 0, len(sale.Items))
	for _, line := range sale.Items {
		if line.Quantity < 1 {
			return nil, store.ErrValidation
		}
		itemIDs = append(itemIDs, line.ItemID)
	}

	stockRows, err := pgTx.QueryContext(ctx, `
		SELECT id, quantity
		FROM items
		WHERE id = ANY($1)
		FOR UPDATE
	`, itemIDs)
	if err != nil {
		return nil, err
	}
	stockMap := make(map[string]int, len(itemIDs))
	for stockRows.Next() {
		var id string
		var qty int
		if err := stockRows.Scan(&id, &qty); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		stockMap[id] = qty
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	for _, line := range sale.Items {
		qty, exists := stockMap[line.ItemID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if qty < line.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}

	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (invoice_no, subtotal, discount_percent, discount_amount, total_amount, payment_status, customer_phone, sale_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.InvoiceNo, sale.Subtotal, sale.DiscountPercent, sale.DiscountAmount, sale.TotalAmount, sale.PaymentStatus, nullString(sale.CustomerPhone), sale.Date)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	for _, line := range sale.Items {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (invoice_no, item_id, name, quantity, price, total)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.InvoiceNo, line.ItemID, line.Name, line.Quantity, line.Price, line.Total)
		if err != nil {
			return nil, err
		}

		res, err := pgTx.ExecContext(ctx, `
			UPDATE items
			SET quantity = quantity - $1, updated_at = now()
			WHERE id = $2 AND quantity >= $1
		`, line.Quantity, line.ItemID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrInsufficientStock
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByInvoiceNo(ctx context.Context, invoiceNo string) (*domain.Sale, error) {
	var sale domain.Sale
	var phone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT invoice_no, subtotal, discount_percent, discount_amount, total_amount, payment_status, customer_phone, sale_date
		FROM sales
		WHERE invoice_no = $1
	`, invoiceNo).Scan(&sale.InvoiceNo, &sale.Subtotal, &sale.DiscountPercent, &sale.DiscountAmount, &sale.TotalAmount, &sale.PaymentStatus, &phone, &sale.Date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CustomerPhone = phone.String

	items, err := s.listSaleItems(ctx, invoiceNo)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Sale, error) {
	query := `
		SELECT invoice_no, subtotal, discount_percent, discount_amount, total_amount, payment_status, customer_phone, sale_date
		FROM sales
		WHERE payment_status = 'success'
	`
	args := make([]any, 0, 2)
	if from != nil {
		args = append(args, *from)
		query += ` AND sale_date >= $1`
	}
	if to != nil {
		args = append(args, *to)
		if from != nil {
			query += ` AND sale_date <= $2`
		} else {
			query += ` AND sale_date <= $1`
		}
	}
	query += ` ORDER BY sale_date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var phone sql.NullString
		if err := rows.Scan(&sale.InvoiceNo, &sale.Subtotal, &sale.DiscountPercent, &sale.DiscountAmount, &sale.TotalAmount, &sale.PaymentStatus, &phone, &sale.Date); err != nil {
			return nil, err
		}
		sale.CustomerPhone = phone.String
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		items, err := s.listSaleItems(ctx, sales[i].InvoiceNo)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items
	}

	return sales, nil
}

func (s *Store) listSaleItems(ctx context.Context, invoiceNo string) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, name, quantity, price, total
		FROM sale_items
		WHERE invoice_no = $1
		ORDER BY name
	`, invoiceNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ItemID, &line.Name, &line.Quantity, &line.Price, &line.Total); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrValidation
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanItems(rows *sql.Rows) ([]domain.Item, error) {
	items := make([]domain.Item, 0, 64)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.BatchNo, &item.Quantity, &item.Price, &item.ExpiryDate, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
