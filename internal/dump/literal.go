package dump

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect renders identifiers and values as SQL text.
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	Literal(v any) string
}

// Postgres is the PostgreSQL dialect.
var Postgres Dialect = postgresDialect{}

// MySQL is the MySQL/MariaDB dialect.
var MySQL Dialect = mysqlDialect{}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgresDialect) Literal(v any) string {
	return literal(v, func(s string) string {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}, func(b []byte) string {
		return `'\x` + hex.EncodeToString(b) + `'::bytea`
	}, "2006-01-02 15:04:05.999999-07:00")
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var mysqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	"'", `\'`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

func (mysqlDialect) Literal(v any) string {
	return literal(v, func(s string) string {
		return "'" + mysqlEscaper.Replace(s) + "'"
	}, func(b []byte) string {
		if len(b) == 0 {
			return "''"
		}
		return "X'" + hex.EncodeToString(b) + "'"
	}, "2006-01-02 15:04:05.999999")
}

func literal(v any, quote func(string) string, bytes func([]byte) string, timeLayout string) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return quote(x)
	case []byte:
		return bytes(x)
	case time.Time:
		return quote(x.Format(timeLayout))
	case driver.Valuer:
		inner, err := x.Value()
		if err != nil {
			return quote(fmt.Sprint(v))
		}
		if _, again := inner.(driver.Valuer); again {
			return quote(fmt.Sprint(inner))
		}
		return literal(inner, quote, bytes, timeLayout)
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return quote(fmt.Sprint(x))
		}
		return quote(string(data))
	default:
		return quote(fmt.Sprint(x))
	}
}
