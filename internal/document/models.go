package document

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Reserved fields managed by the data layer.
const (
	FieldID        = "_id"
	FieldUID       = "_uid"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldDeletedAt = "deletedAt"
)

// Document is an open, ordered set of fields. Values are plain Go values as
// produced by the JSON codec or the Mongo driver: string, int64/int32/float64,
// bool, nil, time.Time or primitive.DateTime, bson.D for nested documents and
// bson.A for arrays.
type Document bson.D

// Get returns the value stored under key.
func (d Document) Get(key string) (interface{}, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key in place, or appends it.
func (d *Document) Set(key string, value interface{}) {
	for i := range *d {
		if (*d)[i].Key == key {
			(*d)[i].Value = value
			return
		}
	}
	*d = append(*d, bson.E{Key: key, Value: value})
}

// Delete removes key, keeping the order of the remaining fields.
func (d *Document) Delete(key string) {
	out := (*d)[:0]
	for _, e := range *d {
		if e.Key != key {
			out = append(out, e)
		}
	}
	*d = out
}

// ID returns the string _id, or "" when absent or not a string.
func (d Document) ID() string {
	v, _ := d.Get(FieldID)
	s, _ := v.(string)
	return s
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(CloneValue(bson.D(d)).(bson.D))
}

// CloneValue deep-copies nested documents and arrays; scalars are returned as is.
func CloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Document:
		return t.Clone()
	case bson.D:
		out := make(bson.D, len(t))
		for i, e := range t {
			out[i] = bson.E{Key: e.Key, Value: CloneValue(e.Value)}
		}
		return out
	case bson.M:
		out := make(bson.M, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []interface{}:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	}
	return v
}
