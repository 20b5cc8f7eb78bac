package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory reads users, addresses and riders from the profile tables and
// records rider assignments.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) GetAddress(ctx context.Context, id string) (*domain.Address, error) {
	query := `SELECT id, user_id, title, city, state FROM addresses WHERE id = $1`

	var address domain.Address
	err := d.pool.QueryRow(ctx, query, id).Scan(
		&address.ID,
		&address.UserID,
		&address.Title,
		&address.City,
		&address.State,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select address: %w", err)
	}

	return &address, nil
}

func (d *Directory) GetRider(ctx context.Context, id string) (*domain.Rider, error) {
	query := `SELECT id, rider_name, username, phone_number FROM riders WHERE id = $1`

	var rider domain.Rider
	err := d.pool.QueryRow(ctx, query, id).Scan(
		&rider.ID,
		&rider.Name,
		&rider.Username,
		&rider.PhoneNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select rider: %w", err)
	}

	return &rider, nil
}

func (d *Directory) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, username, email FROM users WHERE id = $1`

	var user domain.User
	err := d.pool.QueryRow(ctx, query, id).Scan(&user.ID, &user.Username, &user.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	return &user, nil
}

// AttachOrder links orderID to the rider. Repeated calls are no-ops.
func (d *Directory) AttachOrder(ctx context.Context, riderID, orderID string) error {
	query := `
		INSERT INTO rider_orders (rider_id, order_id)
		SELECT id, $2 FROM riders WHERE id = $1
		ON CONFLICT (rider_id, order_id) DO NOTHING
	`

	result, err := d.pool.Exec(ctx, query, riderID, orderID)
	if err != nil {
		return fmt.Errorf("attach rider order: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, err := d.GetRider(ctx, riderID); err != nil {
			return err
		}
	}

	return nil
}

// RiderOrders lists the orders attached to a rider.
func (d *Directory) RiderOrders(ctx context.Context, riderID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT order_id FROM rider_orders WHERE rider_id = $1 ORDER BY order_id`, riderID)
	if err != nil {
		return nil, fmt.Errorf("query rider orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect rider orders: %w", err)
	}

	return orders, nil
}

// NotificationRepository appends notifications to their table.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Save(ctx context.Context, n domain.Notification) error {
	query := `
		INSERT INTO notifications (id, target, recipient_id, title, message, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query, n.ID, n.Target, n.RecipientID, n.Title, n.Message, n.Type, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// ListFor returns the newest notifications for a target and recipient.
func (r *NotificationRepository) ListFor(ctx context.Context, target domain.NotificationTarget, recipientID string, limit int) ([]domain.Notification, error) {
	query := `
		SELECT id, target, recipient_id, title, message, type, created_at
		FROM notifications
		WHERE target = $1 AND recipient_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, target, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.Target, &n.RecipientID, &n.Title, &n.Message, &n.Type, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return notifications, nil
}
