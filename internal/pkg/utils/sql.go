package utils

import (
	"database/sql"
	"time"
)

// ToSQLStr creates new sql str instance
func ToSQLStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// FromSQLStr returns string from sql.NullString
func FromSQLStr(sqlStr sql.NullString) string {
	if sqlStr.Valid {
		return sqlStr.String
	}
	return ""
}

// ToSQLInt32 creates new sql int instance
func ToSQLInt32(i int32) sql.NullInt32 {
	return sql.NullInt32{Int32: i, Valid: true}
}

// FromSQLInt32OrZero returns int from sql.NullInt32
func FromSQLInt32OrZero(sqlData sql.NullInt32) int32 {
	if sqlData.Valid {
		return sqlData.Int32
	}
	return 0
}

// KeepStr returns old if it is set, new value is taken only if old is not known
func KeepStr(old, new sql.NullString) sql.NullString {
	if old.Valid {
		return old
	}
	return new
}

// KeepInt32 returns old if it is set
func KeepInt32(old, new sql.NullInt32) sql.NullInt32 {
	if old.Valid {
		return old
	}
	return new
}

// KeepTime returns old if it is set
func KeepTime(old, new *time.Time) *time.Time {
	if old != nil {
		return old
	}
	return new
}
