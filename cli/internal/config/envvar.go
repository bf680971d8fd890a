package config

import (
	"fmt"
	"os"
	"regexp"
)

// EnvVarSpec is a parsed config scalar: either a literal or a reference to an
// environment variable with an optional default.
type EnvVarSpec struct {
	VarName      string
	HasDefault   bool
	DefaultValue string

	IsLiteral    bool
	LiteralValue string
}

// envVarPattern matches ${VAR} and ${VAR:default}.
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

// ParseEnvVar recognises the ${VAR} and ${VAR:default} forms. Anything else,
// including malformed references, is a literal.
//
//	ParseEnvVar("${OPENAI_API_KEY}")             // required variable
//	ParseEnvVar("${REDIS_ADDR:localhost:6379}")  // variable with default
//	ParseEnvVar("gpt-4o-mini")                   // literal
func ParseEnvVar(value string) *EnvVarSpec {
	m := envVarPattern.FindStringSubmatch(value)
	if m == nil {
		return &EnvVarSpec{IsLiteral: true, LiteralValue: value}
	}

	spec := &EnvVarSpec{VarName: m[1], HasDefault: m[2] != ""}
	if spec.HasDefault {
		spec.DefaultValue = m[2][1:]
	}
	return spec
}

// Resolve returns the value the spec stands for. A required variable that is
// unset is an error.
func (s *EnvVarSpec) Resolve(lookup func(string) (string, bool)) (string, error) {
	if s.IsLiteral {
		return s.LiteralValue, nil
	}
	if v, ok := lookup(s.VarName); ok {
		return v, nil
	}
	if s.HasDefault {
		return s.DefaultValue, nil
	}
	return "", fmt.Errorf("required environment variable %s is not set", s.VarName)
}

// ResolveTree walks a decoded YAML tree and substitutes every string leaf that
// references an environment variable. Non-string scalars pass through.
func ResolveTree(v any, lookup func(string) (string, bool)) (any, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return resolve("", v, lookup)
}

func resolve(path string, v any, lookup func(string) (string, bool)) (any, error) {
	switch x := v.(type) {
	case string:
		out, err := ParseEnvVar(x).Resolve(lookup)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			r, err := resolve(join(path, k), e, lookup)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			r, err := resolve(fmt.Sprintf("%s[%d]", path, i), e, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
