package database

import (
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    login TEXT UNIQUE NOT NULL,
    password_hash BYTEA NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS orders (
    order_id BIGSERIAL PRIMARY KEY,
    conversation_id TEXT NOT NULL UNIQUE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'awaiting_app_selection',
    app_used TEXT,
    restaurant_name TEXT,
    restaurant_address TEXT,
    order_placement_time BIGINT,
    earliest_estimated_arrival_time BIGINT,
    latest_estimated_arrival_time BIGINT,
    order_completion_time BIGINT,
    is_restaurant_name_verified BOOLEAN NOT NULL DEFAULT FALSE,
    is_restaurant_address_verified BOOLEAN NOT NULL DEFAULT FALSE,
    is_order_placement_time_verified BOOLEAN NOT NULL DEFAULT FALSE,
    is_earliest_estimated_arrival_time_verified BOOLEAN NOT NULL DEFAULT FALSE,
    is_latest_estimated_arrival_time_verified BOOLEAN NOT NULL DEFAULT FALSE,
    is_order_completion_time_verified BOOLEAN NOT NULL DEFAULT FALSE,
    placement_screenshot_path TEXT,
    completion_screenshot_path TEXT,
    channel_creation_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}
