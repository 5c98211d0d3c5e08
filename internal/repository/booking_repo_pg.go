package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation = "23505"

	referenceConstraint = "bookings_reference_key"
	seatConstraint      = "tickets_active_seat_uniq"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	UpdatePayment(ctx context.Context, id string, paidAt time.Time) error
	Cancel(ctx context.Context, params CancelParams) error
	ApplyModification(ctx context.Context, params ModificationParams) error
	FindExpired(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
}

// CancelParams describes a conditional cancel. The write only lands if the
// booking is still at ExpectedVersion, the version the outcome was computed
// from. OnlyUnpaidPending further restricts it to pending unpaid bookings,
// which is what expiry needs.
type CancelParams struct {
	BookingID         string
	ExpectedVersion   int64
	Outcome           domain.CancellationOutcome
	PaymentStatus     domain.PaymentStatus
	OnlyUnpaidPending bool
}

// ModificationParams carries only what changed: the fee is added to the stored
// totals and only the listed tickets are rewritten.
type ModificationParams struct {
	BookingID       string
	ExpectedVersion int64
	Fee             int64
	Tickets         []domain.Ticket
	Records         []domain.ModificationRecord
	UpdatedAt       time.Time
}

// pgxIface is the part of *pgxpool.Pool the repository needs.
type pgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGBookingRepository struct {
	db pgxIface
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return newBookingRepository(db)
}

func newBookingRepository(db pgxIface) *PGBookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, reference, trip_id, owner_id, holder_token, contact_email, contact_phone,
	status, payment_status, locked_until, subtotal, service_fee, modification_fees, total, currency,
	paid_at, created_at, updated_at, version`

const (
	updatePaymentSQL = `UPDATE bookings
	SET status=$2, payment_status=$3, paid_at=$4, locked_until=NULL, updated_at=$4, version=version+1
	WHERE id=$1 AND status=$5 AND payment_status<>$3`

	cancelBookingSQL = `UPDATE bookings
	SET status=$2, payment_status=$3, locked_until=NULL, updated_at=$4, version=version+1
	WHERE id=$1 AND status<>$2 AND version=$5`

	unpaidPendingPredicate = ` AND status='pending' AND payment_status<>'paid'`

	applyModificationSQL = `UPDATE bookings
	SET modification_fees=modification_fees+$2, total=total+$2, updated_at=$3, version=version+1
	WHERE id=$1 AND status<>$4 AND version=$5`

	updateTicketSQL = `UPDATE tickets SET seat_code=$3, holder_name=$4, phone=$5, document_id=$6
	WHERE id=$1 AND booking_id=$2 AND active`

	currentStatusSQL = `SELECT status FROM bookings WHERE id=$1`
)

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.Reference, &b.TripID, &b.OwnerID, &b.HolderToken, &b.ContactEmail, &b.ContactPhone,
		&b.Status, &b.PaymentStatus, &b.LockedUntil, &b.Pricing.Subtotal, &b.Pricing.ServiceFee,
		&b.Pricing.ModificationFees, &b.Pricing.Total, &b.Pricing.Currency,
		&b.PaidAt, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	p := booking.Pricing
	if _, err := tx.Exec(ctx, `INSERT INTO bookings (id, reference, trip_id, owner_id, holder_token, contact_email,
		contact_phone, status, payment_status, locked_until, subtotal, service_fee, modification_fees, total,
		currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		booking.ID, booking.Reference, booking.TripID, booking.OwnerID, booking.HolderToken, booking.ContactEmail,
		booking.ContactPhone, booking.Status, booking.PaymentStatus, booking.LockedUntil, p.Subtotal, p.ServiceFee,
		p.ModificationFees, p.Total, p.Currency, booking.CreatedAt, booking.UpdatedAt); err != nil {
		return mapWriteError(err, booking.SeatCodes())
	}

	batch := &pgx.Batch{}
	for _, t := range booking.Tickets {
		batch.Queue(`INSERT INTO tickets (id, booking_id, trip_id, seat_code, holder_name, phone, document_id, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.ID, booking.ID, booking.TripID, t.SeatCode, t.HolderName, t.Phone, t.DocumentID, t.Price)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapWriteError(err, booking.SeatCodes())
	}

	return tx.Commit(ctx)
}

func (r *PGBookingRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE reference=$1)`, reference).Scan(&exists)
	return exists, err
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("booking", id)
	}
	if err != nil {
		return nil, err
	}
	return b, r.loadDetails(ctx, b)
}

func (r *PGBookingRepository) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference=$1`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("booking", reference)
	}
	if err != nil {
		return nil, err
	}
	return b, r.loadDetails(ctx, b)
}

func (r *PGBookingRepository) loadDetails(ctx context.Context, b *domain.Booking) error {
	rows, err := r.db.Query(ctx, `SELECT id, booking_id, seat_code, holder_name, phone, document_id, price
		FROM tickets WHERE booking_id=$1 ORDER BY seat_code`, b.ID)
	if err != nil {
		return err
	}
	b.Tickets = make([]domain.Ticket, 0)
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.BookingID, &t.SeatCode, &t.HolderName, &t.Phone, &t.DocumentID, &t.Price); err != nil {
			rows.Close()
			return err
		}
		b.Tickets = append(b.Tickets, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var c domain.CancellationOutcome
	err = r.db.QueryRow(ctx, `SELECT tier, refund_percentage, refund_amount, processing_fee, total_refund, reason,
		cancelled_by, cancelled_at FROM booking_cancellations WHERE booking_id=$1`, b.ID).
		Scan(&c.Tier, &c.RefundPercentage, &c.RefundAmount, &c.ProcessingFee, &c.TotalRefund, &c.Reason,
			&c.CancelledBy, &c.CancelledAt)
	switch {
	case err == nil:
		b.Cancellation = &c
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	rows, err = r.db.Query(ctx, `SELECT id, booking_id, ticket_id, kind, old_seat, new_seat, field_delta, fee, created_at
		FROM booking_modifications WHERE booking_id=$1 ORDER BY created_at, id`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var m domain.ModificationRecord
		if err := rows.Scan(&m.ID, &m.BookingID, &m.TicketID, &m.Kind, &m.OldSeat, &m.NewSeat, &m.FieldDelta,
			&m.Fee, &m.CreatedAt); err != nil {
			return err
		}
		b.Modifications = append(b.Modifications, m)
	}
	return rows.Err()
}

func (r *PGBookingRepository) UpdatePayment(ctx context.Context, id string, paidAt time.Time) error {
	tag, err := r.db.Exec(ctx, updatePaymentSQL,
		id, domain.BookingStatusConfirmed, domain.PaymentStatusPaid, paidAt, domain.BookingStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStateChanged
	}
	return nil
}

// Cancel returns ErrAlreadyCancelled when someone else cancelled first and
// ErrStateChanged when the booking changed in any other way since it was read.
func (r *PGBookingRepository) Cancel(ctx context.Context, params CancelParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := cancelBookingSQL
	if params.OnlyUnpaidPending {
		query += unpaidPendingPredicate
	}
	tag, err := tx.Exec(ctx, query, params.BookingID, domain.BookingStatusCancelled, params.PaymentStatus,
		params.Outcome.CancelledAt, params.ExpectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		status, err := currentStatus(ctx, tx, params.BookingID)
		if err != nil {
			return err
		}
		if status == domain.BookingStatusCancelled {
			return domain.ErrAlreadyCancelled
		}
		return domain.ErrStateChanged
	}

	if _, err := tx.Exec(ctx, `UPDATE tickets SET active=FALSE WHERE booking_id=$1`, params.BookingID); err != nil {
		return err
	}

	o := params.Outcome
	if _, err := tx.Exec(ctx, `INSERT INTO booking_cancellations (booking_id, tier, refund_percentage, refund_amount,
		processing_fee, total_refund, reason, cancelled_by, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		params.BookingID, o.Tier, o.RefundPercentage, o.RefundAmount, o.ProcessingFee, o.TotalRefund, o.Reason,
		o.CancelledBy, o.CancelledAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ApplyModification writes the changed tickets, the new records and the fee in
// one transaction. It returns ErrBookingCancelled if the booking was cancelled
// meanwhile and ErrStateChanged if any other write got there first.
func (r *PGBookingRepository) ApplyModification(ctx context.Context, params ModificationParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, applyModificationSQL,
		params.BookingID, params.Fee, params.UpdatedAt, domain.BookingStatusCancelled, params.ExpectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		status, err := currentStatus(ctx, tx, params.BookingID)
		if err != nil {
			return err
		}
		if status == domain.BookingStatusCancelled {
			return domain.ErrBookingCancelled
		}
		return domain.ErrStateChanged
	}

	batch := &pgx.Batch{}
	for _, t := range params.Tickets {
		batch.Queue(updateTicketSQL, t.ID, params.BookingID, t.SeatCode, t.HolderName, t.Phone, t.DocumentID)
	}
	for _, m := range params.Records {
		batch.Queue(`INSERT INTO booking_modifications (id, booking_id, ticket_id, kind, old_seat, new_seat,
			field_delta, fee, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ID, params.BookingID, m.TicketID, m.Kind, m.OldSeat, m.NewSeat, m.FieldDelta, m.Fee, m.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapWriteError(err, newSeats(params.Records))
	}

	return tx.Commit(ctx)
}

func currentStatus(ctx context.Context, tx pgx.Tx, id string) (domain.BookingStatus, error) {
	var status domain.BookingStatus
	err := tx.QueryRow(ctx, currentStatusSQL, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.NotFound("booking", id)
	}
	return status, err
}

func (r *PGBookingRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status=$1 AND payment_status<>$2 AND locked_until < $3
		ORDER BY locked_until LIMIT $4`,
		domain.BookingStatusPending, domain.PaymentStatusPaid, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *b)
	}
	return expired, rows.Err()
}

func newSeats(records []domain.ModificationRecord) []string {
	var seats []string
	for _, m := range records {
		if m.Kind == domain.ModificationSeatChange {
			seats = append(seats, m.NewSeat)
		}
	}
	return seats
}

// mapWriteError turns unique violations into domain errors.
func mapWriteError(err error, seats []string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case referenceConstraint:
		return domain.ErrDuplicateReference
	case seatConstraint:
		return &domain.SeatConflictError{Seats: seats}
	default:
		return err
	}
}

var _ BookingRepository = (*PGBookingRepository)(nil)
