package models

import (
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Text is a long free-form string column
type Text string

// GormDBDataType ensures the correct data type is used for each database driver.
// MSSQL has no unbounded TEXT/VARCHAR, MySQL needs TEXT to go past 255.
func (Text) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "TEXT"
	case "postgres":
		return "TEXT"
	case "sqlserver", "mssql":
		return "NVARCHAR(MAX)"
	case "sqlite":
		return "TEXT"
	}
	return "TEXT"
}

// TextPtr wraps a plain string; empty strings map to NULL
func TextPtr(s string) *Text {
	if s == "" {
		return nil
	}
	t := Text(s)
	return &t
}
