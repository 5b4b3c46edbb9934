package key

import (
	"errors"
	"strings"
	"testing"
)

func TestDerive_StringVerbatim(t *testing.T) {
	k, err := Derive("admin-user")
	if err != nil {
		t.Fatal(err)
	}
	if k != "admin-user" {
		t.Fatalf("string key: got %q", k)
	}
}

func TestDerive_DeepEqualInputsAgree(t *testing.T) {
	cases := []struct {
		name string
		a, b any
	}{
		{"lists", []any{"user", 1, true}, []any{"user", 1, true}},
		{"maps", map[string]any{"name": "u", "role": "admin"}, map[string]any{"role": "admin", "name": "u"}},
		{"nested", map[string]any{"a": []any{1, 2}}, map[string]any{"a": []any{1, 2}}},
		{"structs",
			struct{ Name, Role string }{"u", "admin"},
			struct{ Name, Role string }{"u", "admin"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ka, err := Derive(tc.a)
			if err != nil {
				t.Fatal(err)
			}
			kb, err := Derive(tc.b)
			if err != nil {
				t.Fatal(err)
			}
			if ka != kb {
				t.Fatalf("keys differ for deep-equal inputs: %q vs %q", ka, kb)
			}
			if !strings.HasPrefix(ka, "cmp:") {
				t.Fatalf("composite key missing prefix: %q", ka)
			}
		})
	}
}

func TestDerive_DistinctInputsDisagree(t *testing.T) {
	cases := []struct {
		name string
		a, b any
	}{
		{"list order matters", []any{"a", "b"}, []any{"b", "a"}},
		{"value change", map[string]any{"user": "a"}, map[string]any{"user": "b"}},
		{"int vs string", []any{1}, []any{"1"}},
		{"extra field", map[string]any{"a": 1}, map[string]any{"a": 1, "b": 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ka, err := Derive(tc.a)
			if err != nil {
				t.Fatal(err)
			}
			kb, err := Derive(tc.b)
			if err != nil {
				t.Fatal(err)
			}
			if ka == kb {
				t.Fatalf("distinct inputs collided on %q", ka)
			}
		})
	}
}

func TestDerive_CycleFailsFast(t *testing.T) {
	m := map[string]any{}
	m["self"] = m

	_, err := Derive(m)
	if !errors.Is(err, ErrCyclicID) {
		t.Fatalf("cycle: got %v, want ErrCyclicID", err)
	}
}

func TestDerive_SliceCycleFailsFast(t *testing.T) {
	s := make([]any, 1)
	s[0] = s

	_, err := Derive(s)
	if !errors.Is(err, ErrCyclicID) {
		t.Fatalf("slice cycle: got %v, want ErrCyclicID", err)
	}
}

func TestDerive_DepthCap(t *testing.T) {
	// Deeply nested but acyclic: distinct slices at each level.
	var v any = "leaf"
	for i := 0; i < 200; i++ {
		v = []any{v}
	}

	_, err := Derive(v)
	if !errors.Is(err, ErrOversizeID) {
		t.Fatalf("deep nesting: got %v, want ErrOversizeID", err)
	}
}

func TestDerive_SizeCap(t *testing.T) {
	// Flat but huge: shallow nesting, so only the byte cap can trip.
	chunk := strings.Repeat("x", 64<<10)
	id := make([]any, 32) // 32 × 64 KiB of payload, well past 1 MiB
	for i := range id {
		id[i] = chunk
	}

	_, err := Derive(id)
	if !errors.Is(err, ErrOversizeID) {
		t.Fatalf("oversize identifier: got %v, want ErrOversizeID", err)
	}
}

func TestDerive_Unsupported(t *testing.T) {
	_, err := Derive(func() {})
	if !errors.Is(err, ErrUnsupportedID) {
		t.Fatalf("func identifier: got %v, want ErrUnsupportedID", err)
	}

	if _, err := Derive(nil); !errors.Is(err, ErrUnsupportedID) {
		t.Fatalf("nil identifier: got %v, want ErrUnsupportedID", err)
	}
}

func TestDerive_SharedSubtreeIsNotACycle(t *testing.T) {
	shared := []any{"x"}
	v := []any{shared, shared}

	if _, err := Derive(v); err != nil {
		t.Fatalf("diamond sharing misdetected as cycle: %v", err)
	}
}
