// Package dbtest opens throwaway sqlite databases carrying the application schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// schema mirrors pkg/migrate/migrations in sqlite syntax.
var schema = []string{
	`CREATE TABLE products (
		id text PRIMARY KEY,
		name text NOT NULL,
		price integer NOT NULL CHECK (price >= 0),
		image_url text,
		active boolean NOT NULL DEFAULT true,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE carts (
		id text PRIMARY KEY,
		owner_id text NOT NULL UNIQUE,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE cart_items (
		id text PRIMARY KEY,
		cart_id text NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id text NOT NULL,
		product_name text NOT NULL DEFAULT '',
		image_url text,
		quantity integer NOT NULL CHECK (quantity >= 1),
		unit_price integer NOT NULL CHECK (unit_price >= 0),
		position integer NOT NULL DEFAULT 0,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE UNIQUE INDEX idx_cart_items_cart_product ON cart_items (cart_id, product_id)`,
	`CREATE TABLE cart_merges (
		cart_id text NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		merge_key text NOT NULL,
		items_moved integer NOT NULL DEFAULT 0,
		created_at datetime,
		PRIMARY KEY (cart_id, merge_key)
	)`,
	`CREATE TABLE orders (
		id text PRIMARY KEY,
		owner_id text NOT NULL,
		recipient_name text NOT NULL,
		phone text NOT NULL,
		address text NOT NULL,
		note text,
		distance_km real,
		payment_method text NOT NULL,
		fulfillment_status text NOT NULL DEFAULT 'PENDING',
		payment_status text NOT NULL DEFAULT 'PENDING',
		subtotal_amount integer NOT NULL,
		shipping_fee integer NOT NULL,
		total_amount integer NOT NULL,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE order_details (
		id text PRIMARY KEY,
		order_id text NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id text NOT NULL,
		product_name text NOT NULL DEFAULT '',
		image_url text,
		quantity integer NOT NULL CHECK (quantity >= 1),
		unit_price integer NOT NULL,
		line_total integer NOT NULL,
		position integer NOT NULL DEFAULT 0,
		created_at datetime
	)`,
	`CREATE TABLE payment_transactions (
		id text PRIMARY KEY,
		order_id text NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		method text NOT NULL,
		provider text NOT NULL,
		provider_transaction_id text NOT NULL UNIQUE,
		provider_order_id text,
		request_id text NOT NULL,
		pay_url text,
		amount integer NOT NULL,
		status text NOT NULL DEFAULT 'PENDING',
		result_code integer,
		message text,
		finalized_at datetime,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE UNIQUE INDEX idx_payment_transactions_one_pending ON payment_transactions (order_id) WHERE status = 'PENDING'`,
	`CREATE TABLE outbox_events (
		id text PRIMARY KEY,
		event_type text NOT NULL,
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		payload text NOT NULL,
		created_at datetime,
		published_at datetime,
		attempt_count integer NOT NULL DEFAULT 0,
		last_error text
	)`,
}

// Open returns an isolated in-memory database with every table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_foreign_keys=on", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps the shared-cache database free of table locks
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
