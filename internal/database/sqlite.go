package database

import (
	"database/sql"
	"database/sql/driver"
	"fmt"

	puregosqlite "github.com/glebarez/go-sqlite"
	"github.com/localnerve/reestrsi/internal/query"
	"github.com/mattn/go-sqlite3"
)

// SQLiteDriverName is the cgo sqlite driver with the Unicode LOWER installed
const SQLiteDriverName = "sqlite3_reestrsi"

// lower replaces the built-in sqlite LOWER, which folds ASCII letters only
func lower(v any) any {
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		return query.Fold(s)
	case []byte:
		return query.Fold(string(s))
	default:
		return query.Fold(fmt.Sprint(s))
	}
}

func init() {
	// new connections of both sqlite drivers get the function
	puregosqlite.MustRegisterDeterministicScalarFunction("lower", 1,
		func(_ *puregosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return lower(args[0]), nil
		})

	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", lower, true)
		},
	})
}
