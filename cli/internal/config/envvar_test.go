package config

import (
	"reflect"
	"strings"
	"testing"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestParseEnvVar(t *testing.T) {
	tests := []struct {
		input      string
		literal    bool
		varName    string
		hasDefault bool
		defValue   string
	}{
		{"${OPENAI_API_KEY}", false, "OPENAI_API_KEY", false, ""},
		{"${REDIS_ADDR:localhost:6379}", false, "REDIS_ADDR", true, "localhost:6379"},
		{"${DATABASE_URL:postgres://localhost:5432/db}", false, "DATABASE_URL", true, "postgres://localhost:5432/db"},
		{"${API_KEY:}", false, "API_KEY", true, ""},
		{"${_PRIVATE}", false, "_PRIVATE", false, ""},
		{"${MY_VAR_123}", false, "MY_VAR_123", false, ""},
		{"gpt-4o-mini", true, "", false, ""},
		{"", true, "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec := ParseEnvVar(tt.input)
			if spec.IsLiteral != tt.literal {
				t.Fatalf("IsLiteral = %v, want %v", spec.IsLiteral, tt.literal)
			}
			if tt.literal {
				if spec.LiteralValue != tt.input {
					t.Errorf("LiteralValue = %q, want %q", spec.LiteralValue, tt.input)
				}
				return
			}
			if spec.VarName != tt.varName {
				t.Errorf("VarName = %q, want %q", spec.VarName, tt.varName)
			}
			if spec.HasDefault != tt.hasDefault {
				t.Errorf("HasDefault = %v, want %v", spec.HasDefault, tt.hasDefault)
			}
			if spec.DefaultValue != tt.defValue {
				t.Errorf("DefaultValue = %q, want %q", spec.DefaultValue, tt.defValue)
			}
		})
	}
}

func TestParseEnvVarMalformedIsLiteral(t *testing.T) {
	for _, input := range []string{
		"${lowercase}",
		"${123VAR}",
		"${VAR-NAME}",
		"${VAR NAME}",
		"${VAR.NAME}",
		"$VAR",
		"${VAR",
		"VAR}",
		"${}",
		"prefix ${VAR}",
	} {
		spec := ParseEnvVar(input)
		if !spec.IsLiteral || spec.LiteralValue != input {
			t.Errorf("ParseEnvVar(%q) = %+v, want literal", input, spec)
		}
	}
}

func TestResolve(t *testing.T) {
	lookup := lookupFrom(map[string]string{"SET": "from-env", "EMPTY": ""})

	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"${SET}", "from-env", false},
		{"${SET:fallback}", "from-env", false},
		{"${EMPTY:fallback}", "", false},
		{"${UNSET:fallback}", "fallback", false},
		{"${UNSET}", "", true},
		{"literal", "literal", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEnvVar(tt.input).Resolve(lookup)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unset required variable")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestResolveTree(t *testing.T) {
	tree := map[string]any{
		"plugins": map[string]any{
			"openai": map[string]any{
				"api_key":     "${OPENAI_API_KEY}",
				"max_retries": 3,
			},
		},
		"hosts": []any{"${HOST_A:a.local}", "b.local"},
		"debug": true,
	}

	got, err := ResolveTree(tree, lookupFrom(map[string]string{"OPENAI_API_KEY": "sk-test"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := map[string]any{
		"plugins": map[string]any{
			"openai": map[string]any{
				"api_key":     "sk-test",
				"max_retries": 3,
			},
		},
		"hosts": []any{"a.local", "b.local"},
		"debug": true,
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("got %#v, want %#v", got, expected)
	}
}

func TestResolveTreeNamesMissingPath(t *testing.T) {
	tree := map[string]any{
		"plugins": map[string]any{"redis": map[string]any{"password": "${REDIS_PASSWORD}"}},
	}

	_, err := ResolveTree(tree, lookupFrom(nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "plugins.redis.password") || !strings.Contains(err.Error(), "REDIS_PASSWORD") {
		t.Errorf("error %q should name the path and variable", err)
	}
}
