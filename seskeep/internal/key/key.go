// Package key derives canonical session keys from heterogeneous identifier
// input. A plain string is used verbatim; lists and records are
// deep-serialized with stable ordering and fingerprinted, so logically equal
// identifiers always map to the same key within a run.
package key

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

var (
	// ErrCyclicID is returned when the identifier contains a reference cycle.
	ErrCyclicID = errors.New("key: cyclic identifier")
	// ErrOversizeID is returned when the identifier serializes past the size
	// or depth cap. Failing fast beats hanging on a pathological input.
	ErrOversizeID = errors.New("key: identifier too large")
	// ErrUnsupportedID is returned for identifier kinds with no stable
	// serialization (functions, channels).
	ErrUnsupportedID = errors.New("key: unsupported identifier type")
)

const (
	maxDepth = 64
	maxBytes = 1 << 20 // 1 MiB of canonical form
)

// Derive converts an identifier into a canonical session key.
//
// Strings pass through verbatim. Everything else is canonically serialized
// (maps and struct fields in sorted order) and reduced to a sha256
// fingerprint, prefixed with "cmp:" so composite keys can never collide
// with each other across shapes that serialize identically by accident of
// formatting.
func Derive(id any) (string, error) {
	if s, ok := id.(string); ok {
		return s, nil
	}
	if id == nil {
		return "", fmt.Errorf("%w: nil", ErrUnsupportedID)
	}

	e := &encoder{seen: map[uintptr]bool{}}
	if err := e.encode(reflect.ValueOf(id), 0); err != nil {
		return "", err
	}
	sum := sha256.Sum256(e.buf.Bytes())
	return "cmp:" + hex.EncodeToString(sum[:]), nil
}

type encoder struct {
	buf  bytes.Buffer
	seen map[uintptr]bool
}

func (e *encoder) write(s string) error {
	e.buf.WriteString(s)
	if e.buf.Len() > maxBytes {
		return fmt.Errorf("%w: canonical form exceeds %d bytes", ErrOversizeID, maxBytes)
	}
	return nil
}

func (e *encoder) encode(v reflect.Value, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrOversizeID, maxDepth)
	}

	if !v.IsValid() {
		return e.write("z")
	}

	switch v.Kind() {
	case reflect.Bool:
		return e.write("b:" + strconv.FormatBool(v.Bool()))

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.write("i:" + strconv.FormatInt(v.Int(), 10))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return e.write("i:" + strconv.FormatUint(v.Uint(), 10))

	case reflect.Float32, reflect.Float64:
		return e.write("f:" + strconv.FormatFloat(v.Float(), 'g', -1, 64))

	case reflect.String:
		return e.write("s:" + strconv.Quote(v.String()))

	case reflect.Interface:
		if v.IsNil() {
			return e.write("z")
		}
		return e.encode(v.Elem(), depth)

	case reflect.Pointer:
		if v.IsNil() {
			return e.write("z")
		}
		p := v.Pointer()
		if e.seen[p] {
			return ErrCyclicID
		}
		e.seen[p] = true
		defer delete(e.seen, p)
		return e.encode(v.Elem(), depth)

	case reflect.Slice:
		if v.IsNil() {
			return e.write("z")
		}
		p := v.Pointer()
		if e.seen[p] {
			return ErrCyclicID
		}
		e.seen[p] = true
		defer delete(e.seen, p)
		return e.encodeList(v, depth)

	case reflect.Array:
		return e.encodeList(v, depth)

	case reflect.Map:
		if v.IsNil() {
			return e.write("z")
		}
		p := v.Pointer()
		if e.seen[p] {
			return ErrCyclicID
		}
		e.seen[p] = true
		defer delete(e.seen, p)
		return e.encodeMap(v, depth)

	case reflect.Struct:
		return e.encodeStruct(v, depth)

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedID, v.Kind())
	}
}

func (e *encoder) encodeList(v reflect.Value, depth int) error {
	if err := e.write("l["); err != nil {
		return err
	}
	for i := 0; i < v.Len(); i++ {
		if err := e.encode(v.Index(i), depth+1); err != nil {
			return err
		}
		if err := e.write(","); err != nil {
			return err
		}
	}
	return e.write("]")
}

// encodeMap serializes entries sorted by the canonical form of their keys,
// which also handles non-string key types deterministically.
func (e *encoder) encodeMap(v reflect.Value, depth int) error {
	type entry struct{ k, val string }
	entries := make([]entry, 0, v.Len())

	iter := v.MapRange()
	for iter.Next() {
		ke := &encoder{seen: e.seen}
		if err := ke.encode(iter.Key(), depth+1); err != nil {
			return err
		}
		ve := &encoder{seen: e.seen}
		if err := ve.encode(iter.Value(), depth+1); err != nil {
			return err
		}
		entries = append(entries, entry{ke.buf.String(), ve.buf.String()})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].k < entries[j].k })

	if err := e.write("m{"); err != nil {
		return err
	}
	for _, en := range entries {
		if err := e.write(en.k + "=" + en.val + ";"); err != nil {
			return err
		}
	}
	return e.write("}")
}

func (e *encoder) encodeStruct(v reflect.Value, depth int) error {
	t := v.Type()
	names := make([]string, 0, t.NumField())
	byName := map[string]reflect.Value{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		names = append(names, f.Name)
		byName[f.Name] = v.Field(i)
	}
	sort.Strings(names)

	if err := e.write("r{"); err != nil {
		return err
	}
	for _, n := range names {
		if err := e.write(n + "="); err != nil {
			return err
		}
		if err := e.encode(byName[n], depth+1); err != nil {
			return err
		}
		if err := e.write(";"); err != nil {
			return err
		}
	}
	return e.write("}")
}
