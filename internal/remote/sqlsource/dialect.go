package sqlsource

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql driver
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "modernc.org/sqlite"             // sqlite driver
)

// Driver names accepted in remote.driver. They match the database/sql
// registrations of the imported drivers.
const (
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type dialect struct {
	driver string
}

func newDialect(driver string) (dialect, error) {
	switch driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
		return dialect{driver: driver}, nil
	}
	return dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
}

func (d dialect) placeholder(n int) string {
	if d.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d dialect) ident(name string) string {
	if d.driver == DriverMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// builder accumulates bind arguments in the order their placeholders are
// written.
type builder struct {
	d    dialect
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.placeholder(len(b.args))
}

func (b *builder) bindList(vs []string) string {
	ph := make([]string, len(vs))
	for i, v := range vs {
		ph[i] = b.bind(v)
	}
	return strings.Join(ph, ", ")
}

// match renders col = v, or col LIKE v when v ends with a % wildcard.
func (b *builder) match(col, v string) string {
	if strings.HasSuffix(v, "%") {
		return col + " LIKE " + b.bind(v)
	}
	return col + " = " + b.bind(v)
}
