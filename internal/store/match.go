package store

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/wanzdb/wanzdb/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Matches reports whether doc satisfies filter, using the same semantics the
// Mongo server applies to the supported operators.
func Matches(doc document.Document, filter bson.M) (bool, error) {
	for field, cond := range filter {
		ok, err := matchField(bson.D(doc), field, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchField(doc bson.D, field string, cond interface{}) (bool, error) {
	val, exists := lookup(doc, field)
	ops, isOps := operators(cond)
	if !isOps {
		return equals(val, exists, cond), nil
	}
	for _, op := range ops {
		var ok bool
		switch op.Key {
		case "$options":
			continue
		case "$eq":
			ok = equals(val, exists, op.Value)
		case "$ne":
			ok = !equals(val, exists, op.Value)
		case "$gt", "$gte", "$lt", "$lte":
			ok = exists && anyElem(val, func(v interface{}) bool { return compareOp(op.Key, v, op.Value) })
		case "$in":
			arr, isArr := asArray(op.Value)
			if !isArr {
				return false, fmt.Errorf("$in needs an array")
			}
			for _, want := range arr {
				if equals(val, exists, want) {
					ok = true
					break
				}
			}
		case "$regex":
			pattern, isStr := op.Value.(string)
			if !isStr {
				return false, fmt.Errorf("$regex needs a string")
			}
			if opts, _ := optionOf(ops, "$options").(string); strings.Contains(opts, "i") {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false, fmt.Errorf("invalid $regex: %w", err)
			}
			ok = exists && anyElem(val, func(v interface{}) bool {
				s, isStr := v.(string)
				return isStr && re.MatchString(s)
			})
		default:
			return false, fmt.Errorf("unsupported operator %s", op.Key)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// operators returns cond as an ordered operator list when every key is a $-operator.
func operators(cond interface{}) (bson.D, bool) {
	var d bson.D
	switch t := cond.(type) {
	case bson.D:
		d = t
	case document.Document:
		d = bson.D(t)
	case bson.M:
		for k, v := range t {
			d = append(d, bson.E{Key: k, Value: v})
		}
	default:
		return nil, false
	}
	if len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return d, true
}

func optionOf(ops bson.D, key string) interface{} {
	for _, e := range ops {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

func lookup(doc bson.D, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		d, ok := asDoc(cur)
		if !ok {
			return nil, false
		}
		v, found := document.Document(d).Get(part)
		if !found {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func equals(val interface{}, exists bool, want interface{}) bool {
	if want == nil {
		return !exists || val == nil
	}
	if !exists {
		return false
	}
	if _, wantArr := asArray(want); !wantArr {
		if arr, isArr := asArray(val); isArr {
			for _, e := range arr {
				if valueEqual(e, want) {
					return true
				}
			}
			return false
		}
	}
	return valueEqual(val, want)
}

func anyElem(val interface{}, fn func(interface{}) bool) bool {
	if arr, ok := asArray(val); ok {
		for _, e := range arr {
			if fn(e) {
				return true
			}
		}
		return false
	}
	return fn(val)
}

func compareOp(op string, a, b interface{}) bool {
	c, ok := compare(a, b)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	default:
		return c <= 0
	}
}

// compare orders two values of the same kind; ok is false for mixed kinds.
func compare(a, b interface{}) (int, bool) {
	a, b = normalize(a), normalize(b)
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case x.Before(y):
			return -1, true
		case x.After(y):
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func valueEqual(a, b interface{}) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize maps equivalent representations onto one Go type so values coming
// from JSON, the Mongo driver and service code compare equal.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case primitive.DateTime:
		return t.Time().UTC().Truncate(time.Millisecond)
	case time.Time:
		return t.UTC().Truncate(time.Millisecond)
	case document.Document, bson.D, bson.M:
		d, _ := asDoc(t)
		out := make(bson.D, len(d))
		for i, e := range d {
			out[i] = bson.E{Key: e.Key, Value: normalize(e.Value)}
		}
		return out
	case bson.A, []interface{}:
		arr, _ := asArray(t)
		out := make(bson.A, len(arr))
		for i, e := range arr {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

func asDoc(v interface{}) (bson.D, bool) {
	switch t := v.(type) {
	case bson.D:
		return t, true
	case document.Document:
		return bson.D(t), true
	case bson.M:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := make(bson.D, 0, len(t))
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: t[k]})
		}
		return d, true
	}
	return nil, false
}

func asArray(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case bson.A:
		return t, true
	case []interface{}:
		return t, true
	}
	return nil, false
}

// typeRank follows the server's cross-type sort order for the kinds we store.
func typeRank(v interface{}) int {
	switch normalize(v).(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case bson.D:
		return 3
	case bson.A:
		return 4
	case bool:
		return 5
	case time.Time:
		return 6
	}
	return 7
}

func sortCompare(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	c, _ := compare(a, b)
	return c
}
