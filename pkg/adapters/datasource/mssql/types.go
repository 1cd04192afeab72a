package mssql

import "strings"

// mapSQLServerType maps SQL Server type names to the names reported for
// result columns.
func mapSQLServerType(sqlServerType string) string {
	switch t := strings.ToUpper(sqlServerType); t {
	case "INT":
		return "INTEGER"
	case "DECIMAL", "NUMERIC":
		return "NUMERIC"
	case "MONEY", "SMALLMONEY":
		return "MONEY"
	case "FLOAT":
		return "DOUBLE PRECISION"
	case "CHAR", "NCHAR":
		return "CHAR"
	case "VARCHAR", "NVARCHAR":
		return "VARCHAR"
	case "TEXT", "NTEXT":
		return "TEXT"
	case "DATETIME", "DATETIME2", "SMALLDATETIME":
		return "TIMESTAMP"
	case "DATETIMEOFFSET":
		return "TIMESTAMPTZ"
	case "BIT":
		return "BOOLEAN"
	case "UNIQUEIDENTIFIER":
		return "UUID"
	case "VARBINARY", "BINARY", "IMAGE":
		return "BYTEA"
	case "":
		return "UNKNOWN"
	default:
		return t
	}
}
