// Package store holds the record-store adapters over Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"snackngo/internal/model"
)

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

const orderColumns = `order_id, conversation_id, user_id, status, app_used,
		restaurant_name, restaurant_address,
		order_placement_time, earliest_estimated_arrival_time,
		latest_estimated_arrival_time, order_completion_time,
		is_restaurant_name_verified, is_restaurant_address_verified,
		is_order_placement_time_verified, is_earliest_estimated_arrival_time_verified,
		is_latest_estimated_arrival_time_verified, is_order_completion_time_verified,
		placement_screenshot_path, completion_screenshot_path, channel_creation_time`

// Create inserts a fresh order in the initial stage and returns its id.
func (s *OrderStore) Create(ctx context.Context, userID, conversationID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, conversation_id) VALUES ($1, $2) RETURNING order_id`,
		userID, conversationID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

// Get loads the order owning the conversation, or nil when none exists.
func (s *OrderStore) Get(ctx context.Context, conversationID string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE conversation_id = $1`,
		conversationID,
	)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// Update applies a partial write. Keys outside the column whitelist are
// silently dropped; if nothing valid remains the call is a successful no-op.
// Reports true iff at least one row was affected.
func (s *OrderStore) Update(ctx context.Context, conversationID string, fields map[string]any) (bool, error) {
	assignments := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)

	// Iterate the whitelist, not the map, so the statement is deterministic.
	for _, column := range model.UpdatableColumns {
		value, ok := fields[column]
		if !ok {
			continue
		}
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if len(assignments) == 0 {
		return true, nil
	}

	args = append(args, conversationID)
	query := fmt.Sprintf("UPDATE orders SET %s, updated_at = NOW() WHERE conversation_id = $%d",
		strings.Join(assignments, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListByUser returns the user's submissions, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY channel_creation_time DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// ListStale returns in-progress orders untouched since before the cutoff,
// oldest first, for the reminder worker.
func (s *OrderStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status <> $1 AND updated_at < $2
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		string(model.StageCompleted), cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// Touch bumps the idle clock without changing any field, so the reminder
// worker does not renudge the same order every tick.
func (s *OrderStore) Touch(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET updated_at = NOW() WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("touch order: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOrder(row scannable) (*model.Order, error) {
	var (
		o          model.Order
		status     string
		appUsed    sql.NullString
		name       sql.NullString
		address    sql.NullString
		placement  sql.NullInt64
		earliest   sql.NullInt64
		latest     sql.NullInt64
		completion sql.NullInt64
		placePath  sql.NullString
		complPath  sql.NullString
	)

	err := row.Scan(
		&o.ID, &o.ConversationID, &o.UserID, &status, &appUsed,
		&name, &address,
		&placement, &earliest, &latest, &completion,
		&o.IsRestaurantNameVerified, &o.IsRestaurantAddressVerified,
		&o.IsOrderPlacementTimeVerified, &o.IsEarliestEstimatedArrivalTimeVerified,
		&o.IsLatestEstimatedArrivalTimeVerified, &o.IsOrderCompletionTimeVerified,
		&placePath, &complPath, &o.ChannelCreationTime,
	)
	if err != nil {
		return nil, err
	}

	o.Status = model.Stage(status)
	if appUsed.Valid {
		app := model.App(appUsed.String)
		o.AppUsed = &app
	}
	o.RestaurantName = nullString(name)
	o.RestaurantAddress = nullString(address)
	o.OrderPlacementTime = nullInt(placement)
	o.EarliestEstimatedArrivalTime = nullInt(earliest)
	o.LatestEstimatedArrivalTime = nullInt(latest)
	o.OrderCompletionTime = nullInt(completion)
	o.PlacementScreenshotPath = nullString(placePath)
	o.CompletionScreenshotPath = nullString(complPath)

	return &o, nil
}

func collectOrders(rows *sql.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return orders, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
