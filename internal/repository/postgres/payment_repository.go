package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `token, variant, description, total, currency, billing_email,
		status, message, transaction_id, attrs, success_url, failure_url, process_url,
		created_at, updated_at`

// allowedSortColumns is a whitelist of columns valid for ORDER BY.
var allowedSortColumns = map[string]string{
	"created_at": "created_at",
	"total":      "total",
	"status":     "status",
	"updated_at": "updated_at",
}

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) Querier {
	return conn(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	attrs, err := marshalAttrs(p.Attrs)
	if err != nil {
		return err
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.Token, string(p.Variant), p.Description, p.Total, p.Currency, p.BillingEmail,
		string(p.Status), p.Message, p.TransactionID, attrs, p.SuccessURL, p.FailureURL, p.ProcessURL,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.NewDomainError("duplicate_token", "payment token already exists", domainErrors.ErrInvalidInput)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByToken retrieves a payment by its token.
func (r *PaymentRepository) GetByToken(ctx context.Context, token string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE token = $1`, token))
}

// GetByTokenForUpdate retrieves a payment and locks its row until the
// surrounding transaction ends. Outside a transaction the lock is released
// immediately.
func (r *PaymentRepository) GetByTokenForUpdate(ctx context.Context, token string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE token = $1 FOR UPDATE`, token))
}

// Update writes the gateway-mutable fields of a payment.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	attrs, err := marshalAttrs(p.Attrs)
	if err != nil {
		return err
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET
		  status=$1, message=$2, transaction_id=$3, attrs=$4, updated_at=$5
		 WHERE token=$6`,
		string(p.Status), p.Message, p.TransactionID, attrs, p.UpdatedAt, p.Token,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPaymentNotFound
	}
	return nil
}

// List lists payments with optional filters.
func (r *PaymentRepository) List(ctx context.Context, f payment.ListFilter) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.Variant != nil {
		query += fmt.Sprintf(" AND variant = $%d", argIdx)
		args = append(args, string(*f.Variant))
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// AddEvent appends an entry to a payment's audit trail.
func (r *PaymentRepository) AddEvent(ctx context.Context, e *payment.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payment_events (id, token, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Token, e.Type, data, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// ListEvents returns the audit trail of a payment, oldest first.
func (r *PaymentRepository) ListEvents(ctx context.Context, token string) ([]*payment.Event, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, token, event_type, event_data, created_at
		 FROM payment_events WHERE token = $1 ORDER BY created_at ASC, id ASC`, token,
	)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}
	defer rows.Close()

	var events []*payment.Event
	for rows.Next() {
		e := &payment.Event{}
		var data []byte
		if err := rows.Scan(&e.ID, &e.Token, &e.Type, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}
		if err := json.Unmarshal(data, &e.Data); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- scanning helpers ---

func marshalAttrs(attrs map[string]json.RawMessage) ([]byte, error) {
	if attrs == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal attrs: %w", err)
	}
	return b, nil
}

// scanPayment scans a payment from any source implementing the scanner interface.
func (r *PaymentRepository) scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var (
		variant string
		status  string
		attrs   []byte
	)
	err := s.Scan(
		&p.Token, &variant, &p.Description, &p.Total, &p.Currency, &p.BillingEmail,
		&status, &p.Message, &p.TransactionID, &attrs, &p.SuccessURL, &p.FailureURL, &p.ProcessURL,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.Variant = payment.Variant(variant)
	p.Status = payment.Status(status)
	p.Attrs = make(map[string]json.RawMessage)
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &p.Attrs); err != nil {
			return nil, fmt.Errorf("unmarshal payment attrs: %w", err)
		}
	}
	return p, nil
}
