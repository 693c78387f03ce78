package db_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/customers"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
)

// Files holding SQL that reads or writes the schema, relative to this package.
var sqlSources = []string{
	"../../sales/repository.go",
	"../../inventory/repository.go",
	"../../delivery/repository.go",
	"../../payments/repository.go",
	"../../payments/ledger.go",
	"../../customers/repository.go",
	"../../audit/repository.go",
	"../../shared/idempotency.go",
}

// Column list constants and the table each one selects from.
var columnLists = map[string]string{
	"orderColumns":       "orders",
	"itemColumns":        "order_line_items",
	"lotColumns":         "stock_lots",
	"reservationColumns": "reservations",
	"dispatchColumns":    "delivery_dispatches",
	"paymentColumns":     "payments",
	"customerColumns":    "customers",
}

var (
	tableRe      = regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS (\w+) \((.*?)\n\);`)
	insertRe     = regexp.MustCompile(`(?s)INSERT INTO ([a-z_]+)\s*\(([^)]*)\)`)
	updateRe     = regexp.MustCompile(`(?s)\bUPDATE ([a-z_]+)(?:\s+[a-z]\w*)?\s+SET\s+(.*?)\s+(?:WHERE|FROM|RETURNING)\b`)
	upsertRe     = regexp.MustCompile("(?s)INSERT INTO ([a-z_]+)[^`]*?DO UPDATE\\s+SET\\s+([^`]*)`")
	columnListRe = regexp.MustCompile("(?s)const (\\w+Columns) = `([^`]*)`")
)

func schemaColumns(t *testing.T) map[string]map[string]bool {
	t.Helper()
	tables := map[string]map[string]bool{}
	for _, m := range tableRe.FindAllStringSubmatch(db.Schema, -1) {
		cols := map[string]bool{}
		for _, line := range strings.Split(m[2], "\n") {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			name := fields[0]
			if name == strings.ToUpper(name) {
				continue
			}
			cols[name] = true
		}
		tables[m[1]] = cols
	}
	require.NotEmpty(t, tables)
	return tables
}

func checkValues(t *testing.T, column string) []string {
	t.Helper()
	re := regexp.MustCompile(`\b` + column + `\s+TEXT NOT NULL CHECK \(` + column + ` IN \(([^)]*)\)\)`)
	m := re.FindStringSubmatch(db.Schema)
	require.NotNil(t, m, "no CHECK constraint for %s", column)
	var values []string
	for _, v := range strings.Split(m[1], ",") {
		values = append(values, strings.Trim(strings.TrimSpace(v), "'"))
	}
	return values
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func assignedColumns(set string) []string {
	var cols []string
	for _, part := range splitTopLevel(set) {
		left, _, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		cols = append(cols, strings.TrimSpace(left))
	}
	return cols
}

func selectedColumns(list string) []string {
	var cols []string
	for _, expr := range splitTopLevel(list) {
		expr = strings.TrimSpace(expr)
		if inner, ok := strings.CutPrefix(expr, "COALESCE("); ok {
			expr = splitTopLevel(inner)[0]
		}
		expr, _, _ = strings.Cut(expr, "::")
		cols = append(cols, strings.TrimSpace(expr))
	}
	return cols
}

func TestSchemaStatusChecksMatchDomain(t *testing.T) {
	tests := []struct {
		column string
		values []string
	}{
		{"status", []string{string(sales.StatusCreated), string(sales.StatusReadyForPayment), string(sales.StatusCompleted)}},
		{"payment_status", []string{string(sales.PaymentPending), string(sales.PaymentPartial), string(sales.PaymentFull)}},
		{"customer_type", []string{customers.TypeRetail, customers.TypeWholesale, customers.TypeDistributor}},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			require.ElementsMatch(t, tt.values, checkValues(t, tt.column))
		})
	}
}

func TestRepositorySQLMatchesSchema(t *testing.T) {
	tables := schemaColumns(t)
	statements := 0

	requireColumns := func(t *testing.T, source, table string, cols []string) {
		t.Helper()
		known, ok := tables[table]
		require.True(t, ok, "%s: table %s is not in schema.sql", source, table)
		for _, col := range cols {
			require.True(t, known[col], "%s: %s.%s is not in schema.sql", source, table, col)
		}
		statements++
	}

	for _, path := range sqlSources {
		src, err := os.ReadFile(filepath.FromSlash(path))
		require.NoError(t, err)
		code := string(src)
		name := filepath.Base(filepath.Dir(path)) + "/" + filepath.Base(path)

		for _, m := range insertRe.FindAllStringSubmatch(code, -1) {
			var cols []string
			for _, c := range strings.Split(m[2], ",") {
				cols = append(cols, strings.TrimSpace(c))
			}
			requireColumns(t, name, m[1], cols)
		}
		for _, m := range updateRe.FindAllStringSubmatch(code, -1) {
			requireColumns(t, name, m[1], assignedColumns(m[2]))
		}
		for _, m := range upsertRe.FindAllStringSubmatch(code, -1) {
			requireColumns(t, name, m[1], assignedColumns(m[2]))
		}
		for _, m := range columnListRe.FindAllStringSubmatch(code, -1) {
			table, ok := columnLists[m[1]]
			require.True(t, ok, "%s: unmapped column list %s", name, m[1])
			requireColumns(t, name, table, selectedColumns(m[2]))
		}
	}
	require.Greater(t, statements, 20)
}

func TestLedgerUpsertTouchesUpdatedAt(t *testing.T) {
	tables := schemaColumns(t)
	require.True(t, tables["accounting_entries"]["updated_at"])
	require.True(t, tables["accounting_entries"]["reference"])
}
