package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pendergraft/contraship/internal/validation"
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// encodeArgs serializes constructor arguments for storage
func encodeArgs(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding constructor args: %w", err)
	}
	return string(b), nil
}

// decodeArgs restores constructor arguments. Numbers decode as json.Number so
// integers wider than 53 bits survive the round trip.
func decodeArgs(s string) ([]any, error) {
	if s == "" {
		return []any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var args []any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("decoding constructor args: %w", err)
	}
	if args == nil {
		args = []any{}
	}
	return args, nil
}

// ArgsEqual compares two constructor argument lists element by element. Values are
// compared by their JSON encoding, so 8, int64(8) and json.Number("8") are equal;
// addresses compare case-insensitively.
func ArgsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !argEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func argEqual(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		if validation.ValidateAddress(as) == nil && validation.ValidateAddress(bs) == nil {
			return strings.EqualFold(as, bs)
		}
		return as == bs
	}
	al, aok := asList(a)
	bl, bok := asList(b)
	if aok && bok {
		return ArgsEqual(al, bl)
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// asList returns the elements of a slice or array argument. Byte slices are
// treated as scalars.
func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// applyModify runs fn against a copy of current and fills in the bookkeeping
// fields of the result. A nil result means nothing should be written.
func applyModify(key Key, current *DeploymentRecord, fn ModifyFunc, now time.Time) (*DeploymentRecord, error) {
	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}
	next = next.Clone()
	if next.Key() != key {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrKeyMismatch, next.Key(), key)
	}
	if !next.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, next.Status)
	}
	if next.ConstructorArgs == nil {
		next.ConstructorArgs = []any{}
	}

	if current != nil {
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
	} else {
		if next.ID == "" {
			next.ID = generateID()
		}
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	return next, nil
}

// replaceWith is the ModifyFunc behind UpsertRecord
func replaceWith(r *DeploymentRecord) ModifyFunc {
	return func(*DeploymentRecord) (*DeploymentRecord, error) {
		return r, nil
	}
}
