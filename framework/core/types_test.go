package core

import (
	"encoding/json"
	"testing"
)

func TestOption_Some(t *testing.T) {
	opt := Some(42)

	if !opt.IsSome() {
		t.Error("Expected Some to be Some")
	}
	if opt.IsNone() {
		t.Error("Expected Some to not be None")
	}
	if opt.Value() != 42 {
		t.Errorf("Expected 42, got %d", opt.Value())
	}

	v, ok := opt.Get()
	if !ok || v != 42 {
		t.Errorf("Expected (42, true), got (%d, %v)", v, ok)
	}
}

func TestOption_None(t *testing.T) {
	opt := None[int]()

	if opt.IsSome() {
		t.Error("Expected None to not be Some")
	}
	if !opt.IsNone() {
		t.Error("Expected None to be None")
	}
	if opt.ValueOr(7) != 7 {
		t.Errorf("Expected default 7, got %d", opt.ValueOr(7))
	}

	if _, ok := opt.Get(); ok {
		t.Error("Expected Get on None to report absence")
	}
}

func TestOption_Value_PanicsOnNone(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for Value on None")
		}
	}()
	None[string]().Value()
}

func TestOption_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Some("a"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(data) != `"a"` {
		t.Errorf(`Expected "a", got %s`, data)
	}

	data, err = json.Marshal(None[string]())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("Expected null, got %s", data)
	}
}
