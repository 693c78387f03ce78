package db

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaDeclaresEveryTable(t *testing.T) {
	tables := []string{
		"stock_lots", "customers", "orders", "order_line_items", "reservations",
		"delivery_dispatches", "payments", "accounting_entries", "invoices",
		"audit_events", "idempotency_keys",
	}
	for _, table := range tables {
		require.Regexp(t, regexp.MustCompile(`CREATE TABLE IF NOT EXISTS `+table+` \(`), Schema)
	}
}

func TestSchemaKeepsNamedConstraints(t *testing.T) {
	// The order repository maps this constraint to a numbering retry.
	require.Contains(t, Schema, "CONSTRAINT orders_order_number_key UNIQUE (order_number)")
	require.Contains(t, Schema, "payment_id BIGINT NOT NULL UNIQUE")
	require.Contains(t, Schema, "line_item_id      BIGINT NOT NULL UNIQUE")
}
