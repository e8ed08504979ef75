package storage

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// sqlTimeLayout is the seconds-precision timestamp literal format the cold
// store accepts.
const sqlTimeLayout = "2006-01-02 15:04:05"

// toSQLLiteral renders a value as a SQL literal for the cold store's
// composed INSERT statements.
//
// Encoding rules: nil becomes NULL; maps and sequences are serialized to
// JSON text and quoted; timestamps use seconds precision in UTC; everything
// else is stringified and quoted with backslashes and single quotes escaped.
func toSQLLiteral(value any) string {
	if value == nil {
		return "NULL"
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "NULL"
		}

		v = v.Elem()
	}

	if ts, ok := v.Interface().(time.Time); ok {
		return "'" + ts.UTC().Format(sqlTimeLayout) + "'"
	}

	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		encoded, err := json.Marshal(v.Interface())
		if err != nil {
			return quoteSQLString(fmt.Sprint(v.Interface()))
		}

		return quoteSQLString(string(encoded))
	default:
		return quoteSQLString(fmt.Sprint(v.Interface()))
	}
}

// quoteSQLString escapes backslashes, then single quotes, and wraps the
// result in single quotes. The escape order matters.
func quoteSQLString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)

	return "'" + s + "'"
}
