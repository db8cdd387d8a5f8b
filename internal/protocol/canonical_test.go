package protocol

import (
	"testing"
)

func TestMarshal_SortsKeysRecursively(t *testing.T) {
	in := map[string]any{
		"b": 1,
		"a": []any{
			map[string]any{"z": true, "y": nil},
			"second",
		},
		"C": 2.5,
	}

	got, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"C":2.5,"a":[{"y":null,"z":true},"second"],"b":1}`
	if string(got) != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestMarshal_StringEscaping(t *testing.T) {
	got, err := Marshal(map[string]string{"s": "<a href=\"x\">&\n\t\u0001é"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"s":"<a href=\"x\">&\n\t\u0001é"}`
	if string(got) != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestMarshal_Structs(t *testing.T) {
	type inner struct {
		Zeta  int    `json:"zeta"`
		Alpha string `json:"alpha"`
	}
	type outer struct {
		Name  string `json:"name"`
		Inner inner  `json:"inner"`
	}

	got, err := Marshal(outer{Name: "n", Inner: inner{Zeta: 3, Alpha: "a"}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"inner":{"alpha":"a","zeta":3},"name":"n"}`
	if string(got) != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestMarshal_Reproducible(t *testing.T) {
	in := map[string]any{"k3": 3, "k1": 1, "k2": map[string]any{"b": 2, "a": 1}}
	first, _ := Marshal(in)
	for i := 0; i < 20; i++ {
		again, _ := Marshal(in)
		if string(again) != string(first) {
			t.Fatalf("non-deterministic output: %s vs %s", first, again)
		}
	}
}

func TestMarshal_Unsupported(t *testing.T) {
	if _, err := Marshal(make(chan int)); err == nil {
		t.Error("expected error for channel value")
	}
}
