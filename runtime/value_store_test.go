package runtime

import (
	"reflect"
	"testing"
)

func TestParseVarKey(t *testing.T) {
	tests := []struct {
		in   string
		want VarKey
		ok   bool
	}{
		{"#start.query#", VarKey{"start", "query"}, true},
		{"#llm-1.usage.total#", VarKey{"llm-1", "usage.total"}, true},
		{"#start#", VarKey{}, false},
		{"start.query", VarKey{}, false},
		{"#.query#", VarKey{}, false},
		{"#start.#", VarKey{}, false},
		{"##", VarKey{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseVarKey(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseVarKey(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}

	if s := Key("start", "query").String(); s != "#start.query#" {
		t.Errorf("String() = %q", s)
	}
}

func TestSelector_Key(t *testing.T) {
	key, err := Selector{"start", "items"}.Key()
	if err != nil || key != Key("start", "items") {
		t.Errorf("Key() = %v, %v", key, err)
	}

	for _, bad := range []Selector{nil, {"start"}, {"start", ""}, {"a", "b", "c"}} {
		if _, err := bad.Key(); err == nil {
			t.Errorf("Selector%v.Key() should fail", []string(bad))
		}
	}
}

func TestVariablePool_SeedAndResolve(t *testing.T) {
	pool := NewVariablePool()
	pool.Seed(map[string]any{
		"#start.query#": "refund",
		"query":         "plain query",
		"locale":        "en",
	})

	if v, ok := pool.Get(Key("start", "query")); !ok || v.Text() != "refund" {
		t.Errorf("namespaced seed = %v, %v", v, ok)
	}
	if _, ok := pool.GetPlain("#start.query#"); ok {
		t.Error("namespaced seed should not land in plain keys")
	}

	// Namespaced wins; plain is the fallback for the same name.
	if v, _ := pool.Resolve(Key("start", "query")); v.Text() != "refund" {
		t.Errorf("Resolve = %v, want refund", v)
	}
	if v, ok := pool.Resolve(Key("any-node", "locale")); !ok || v.Text() != "en" {
		t.Errorf("Resolve fallback = %v, %v", v, ok)
	}
	if _, ok := pool.Resolve(Key("start", "missing")); ok {
		t.Error("Resolve of absent key should fail")
	}

	pool.Delete(Key("start", "query"))
	if v, _ := pool.Resolve(Key("start", "query")); v.Text() != "plain query" {
		t.Errorf("Resolve after delete = %v, want plain query", v)
	}
}

func TestVariablePool_SnapshotAndEnv(t *testing.T) {
	pool := NewVariablePool()
	pool.SetPlain("locale", String("en"))
	pool.Set(Key("llm", "text"), String("hello"))
	pool.Set(Key("llm", "usage"), ValueOf(map[string]any{"total_tokens": 9}))

	wantSnapshot := map[string]any{
		"locale":      "en",
		"#llm.text#":  "hello",
		"#llm.usage#": map[string]any{"total_tokens": 9.0},
	}
	if got := pool.Snapshot(); !reflect.DeepEqual(got, wantSnapshot) {
		t.Errorf("Snapshot() = %v, want %v", got, wantSnapshot)
	}

	wantEnv := map[string]any{
		"locale": "en",
		"llm": map[string]any{
			"text":  "hello",
			"usage": map[string]any{"total_tokens": 9.0},
		},
	}
	if got := pool.Env(); !reflect.DeepEqual(got, wantEnv) {
		t.Errorf("Env() = %v, want %v", got, wantEnv)
	}
	if pool.Len() != 3 {
		t.Errorf("Len() = %d, want 3", pool.Len())
	}
}
