package dump

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLSource pages through the tables of a MySQL database through gorm.
type MySQLSource struct {
	db *gorm.DB
}

// OpenMySQL connects to dsn (go-sql-driver format).
func OpenMySQL(dsn string) (*MySQLSource, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return &MySQLSource{db: db}, nil
}

// NewMySQLSource wraps an existing gorm connection.
func NewMySQLSource(db *gorm.DB) *MySQLSource {
	return &MySQLSource{db: db}
}

func (s *MySQLSource) Dialect() Dialect { return MySQL }

// Ping checks the connection is usable.
func (s *MySQLSource) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats reports the connection pool statistics.
func (s *MySQLSource) Stats() sql.DBStats {
	sqlDB, err := s.db.DB()
	if err != nil {
		return sql.DBStats{}
	}
	return sqlDB.Stats()
}

// Close releases the underlying connection pool.
func (s *MySQLSource) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLSource) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.WithContext(ctx).Raw("SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'").Rows()
	if err != nil {
		return nil, fmt.Errorf("show tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (s *MySQLSource) Schema(ctx context.Context, table string) (string, error) {
	var name, ddl string
	row := s.db.WithContext(ctx).Raw("SHOW CREATE TABLE " + MySQL.QuoteIdent(table)).Row()
	if err := row.Scan(&name, &ddl); err != nil {
		return "", fmt.Errorf("show create table %s: %w", table, err)
	}
	return ddl, nil
}

func (s *MySQLSource) Rows(ctx context.Context, table string, offset int64, limit int) ([]string, [][]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY 1 LIMIT ? OFFSET ?", MySQL.QuoteIdent(table))
	rows, err := s.db.WithContext(ctx).Raw(query, limit, offset).Rows()
	if err != nil {
		return nil, nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, fmt.Errorf("column types of %s: %w", table, err)
	}
	binary := make([]bool, len(types))
	for i, ct := range types {
		binary[i] = isBinaryType(ct.DatabaseTypeName())
	}

	var out [][]any
	for rows.Next() {
		raw := make([]sql.RawBytes, len(columns))
		dest := make([]any, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("scan row of %s: %w", table, err)
		}
		out = append(out, mysqlRow(raw, binary))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows of %s: %w", table, err)
	}
	return columns, out, nil
}

// mysqlRow copies scanned raw bytes into dump values: NULL stays nil,
// binary columns stay bytes and everything else becomes a string.
func mysqlRow(raw []sql.RawBytes, binary []bool) []any {
	vals := make([]any, len(raw))
	for i, b := range raw {
		switch {
		case b == nil:
			vals[i] = nil
		case binary[i]:
			vals[i] = append([]byte(nil), b...)
		default:
			vals[i] = string(b)
		}
	}
	return vals
}

func isBinaryType(name string) bool {
	name = strings.ToUpper(name)
	return strings.Contains(name, "BLOB") || strings.Contains(name, "BINARY") || name == "BIT" || name == "GEOMETRY"
}
