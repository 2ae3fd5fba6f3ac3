package invoices

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// The invoice tables are created by Migrate, not AutoMigrate; every
// column the repository reads or writes has to exist in the bootstrap
// DDL or a fresh database breaks at the first invoice.
func TestInvoiceSchemaCoversRepositoryColumns(t *testing.T) {
	ddl := strings.Join(schemaStatements, "\n")

	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS invoices")
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS invoice_lines")

	for _, model := range []interface{}{Invoice{}, InvoiceLine{}} {
		typ := reflect.TypeOf(model)
		for i := 0; i < typ.NumField(); i++ {
			column := typ.Field(i).Tag.Get("db")
			if column == "" || column == "-" {
				continue
			}
			assert.Contains(t, ddl, column, "column %s missing from schema", column)
		}
	}
}
