// Package query turns HTTP query strings and predicate bodies into store
// filters, pagination and sort options.
package query

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wanzdb/wanzdb/internal/apperr"
	"github.com/wanzdb/wanzdb/internal/document"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	DefaultPage  = 1
	DefaultLimit = 100
)

// Query parameters that control paging and views; never used as filters.
var reserved = map[string]bool{
	"page":      true,
	"limit":     true,
	"sort":      true,
	"fields":    true,
	"trash":     true,
	"permanent": true,
}

// operators allowed in a field filter, by bare name.
var operators = map[string]bool{
	"gt":    true,
	"gte":   true,
	"lt":    true,
	"lte":   true,
	"in":    true,
	"ne":    true,
	"regex": true,
}

var timestampFields = map[string]bool{
	document.FieldCreatedAt: true,
	document.FieldUpdatedAt: true,
	document.FieldDeletedAt: true,
}

// Query is a translated listing request.
type Query struct {
	Filter bson.M
	Skip   int64
	Limit  int64
	Sort   bson.D
	Trash  bool
}

// Parse builds a Query from URL query values.
func Parse(values url.Values) (Query, error) {
	q := Query{Filter: bson.M{}}

	for key, vals := range values {
		if reserved[key] || len(vals) == 0 {
			continue
		}
		if err := checkField(key); err != nil {
			return Query{}, err
		}
		raw, err := parseValue(key, vals[0])
		if err != nil {
			return Query{}, err
		}
		cond, err := translate(key, raw)
		if err != nil {
			return Query{}, err
		}
		q.Filter[key] = cond
	}

	page := positive(values.Get("page"), DefaultPage)
	q.Limit = positive(values.Get("limit"), DefaultLimit)
	q.Skip = (page - 1) * q.Limit
	q.Sort = ParseSort(values.Get("sort"))
	q.Trash = Flag(values, "trash")
	return q, nil
}

// Predicate translates a find-one body. Field filters obey the same operator
// rules as query-string filters.
func Predicate(body document.Document) (bson.M, error) {
	filter := bson.M{}
	for _, e := range body {
		if err := checkField(e.Key); err != nil {
			return nil, err
		}
		cond, err := translate(e.Key, e.Value)
		if err != nil {
			return nil, err
		}
		filter[e.Key] = cond
	}
	return filter, nil
}

// ParseSort maps "-field" to descending and "field" to ascending. Empty input
// gives newest first.
func ParseSort(s string) bson.D {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return bson.D{{Key: document.FieldCreatedAt, Value: -1}}
	}
	if strings.HasPrefix(s, "-") {
		return bson.D{{Key: s[1:], Value: -1}}
	}
	return bson.D{{Key: s, Value: 1}}
}

// Flag reports whether key is set to a true value.
func Flag(values url.Values, key string) bool {
	b, err := strconv.ParseBool(values.Get(key))
	return err == nil && b
}

func positive(s string, def int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func checkField(name string) error {
	if name == "" {
		return apperr.Validation("empty filter field")
	}
	if strings.HasPrefix(name, "$") {
		return apperr.Validation("filter field %q may not start with $", name)
	}
	return nil
}

// parseValue decodes structured values and JSON literals; anything else is
// plain text.
func parseValue(field, s string) (interface{}, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s, nil
	}
	switch trimmed[0] {
	case '{', '[', '"':
		v, err := document.DecodeValue([]byte(trimmed))
		if err != nil {
			return nil, apperr.Validation("malformed filter value for %q: %v", field, err)
		}
		return v, nil
	}
	if looksLiteral(trimmed) {
		if v, err := document.DecodeValue([]byte(trimmed)); err == nil {
			return v, nil
		}
	}
	return s, nil
}

func looksLiteral(s string) bool {
	switch s {
	case "true", "false", "null":
		return true
	}
	c := s[0]
	return c == '-' || (c >= '0' && c <= '9')
}

// translate rewrites a field's filter value. Only keys of a map that is itself
// the field's value are treated as operators; nested equality documents are
// left untouched.
func translate(field string, v interface{}) (interface{}, error) {
	d, ok := v.(bson.D)
	if !ok || len(d) == 0 {
		return v, nil
	}

	opCount := 0
	for _, e := range d {
		if isOperator(e.Key) {
			opCount++
		} else if strings.HasPrefix(e.Key, "$") {
			return nil, apperr.Validation("unsupported operator %q on %q", e.Key, field)
		}
	}
	switch {
	case opCount == 0:
		return d, nil
	case opCount != len(d):
		return nil, apperr.Validation("filter on %q mixes operators and fields", field)
	}

	out := make(bson.D, 0, len(d)+1)
	hasRegex := false
	for _, e := range d {
		op := "$" + strings.TrimPrefix(e.Key, "$")
		val := e.Value
		switch op {
		case "$in":
			if _, isArr := val.(bson.A); !isArr {
				return nil, apperr.Validation("$in on %q needs an array", field)
			}
		case "$regex":
			if _, isStr := val.(string); !isStr {
				return nil, apperr.Validation("$regex on %q needs a string", field)
			}
			hasRegex = true
		case "$gt", "$gte", "$lt", "$lte":
			val = coerceTime(field, val)
		}
		out = append(out, bson.E{Key: op, Value: val})
	}
	if hasRegex {
		out = append(out, bson.E{Key: "$options", Value: "i"})
	}
	return out, nil
}

func isOperator(key string) bool {
	return operators[strings.TrimPrefix(key, "$")]
}

// coerceTime lets range filters on the managed timestamps take RFC 3339 text.
func coerceTime(field string, v interface{}) interface{} {
	if !timestampFields[field] {
		return v
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return v
}
