package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Package-level validator instance
var validate *validator.Validate

// init initializes the validator and registers custom validation functions
func init() {
	validate = validator.New()

	// Report fields by their json/yaml name so errors match what authors wrote
	validate.RegisterTagNameFunc(fieldName)

	// Register custom validators
	registerCustomValidators()
}

func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "yaml"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// InitializeConfig prepares a plugin or engine config struct.
// It combines: defaults → value merging → validation in one call.
func InitializeConfig(config any, rawValues map[string]any) error {
	// Step 1: Apply defaults from struct tags
	if err := ApplyDefaults(config); err != nil {
		slog.Error("Config: failed to apply defaults",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	// Step 2: Merge raw values (env vars + literals from agentflow.yaml)
	// Use YAML tags because Config structs use yaml tags for field mapping
	if len(rawValues) > 0 {
		if err := mapToStructFromYAML(rawValues, config); err != nil {
			slog.Error("Config: failed to apply config values",
				"config_type", reflect.TypeOf(config).String(),
				"raw_values", rawValues,
				"error", err)
			return fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	// Step 3: Validate final config (AFTER rawValues are merged)
	// Extract the actual value if config is a pointer
	configValue := reflect.ValueOf(config)
	if configValue.Kind() == reflect.Ptr {
		configValue = configValue.Elem()
	}

	if err := validateConfig(configValue.Interface()); err != nil {
		slog.Error("Config validation failed",
			"config_type", reflect.TypeOf(config).String(),
			"config_value", configValue.Interface(),
			"error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// registerCustomValidators registers framework-provided custom validation functions
func registerCustomValidators() {
	// hostname_port validates "host:port" format with numeric port
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		host, port, err := net.SplitHostPort(addr)
		if err != nil || host == "" || port == "" {
			return false
		}
		// Verify port is a valid number in range 1-65535
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	// url_format validates URL structure
	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})

	// dsn validates database connection string format
	// Checks for either URL format (scheme://...) or traditional DSN (user@host...)
	validate.RegisterValidation("dsn", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		// Check for URL format (postgres://..., mysql://..., etc.)
		if strings.Contains(s, "://") {
			_, err := url.Parse(s)
			return err == nil
		}
		// Check for traditional DSN format (user:pass@host/db)
		return strings.Contains(s, "@") && strings.Contains(s, "/")
	})
}

func ApplyDefaults(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}

	return nil
}

func validateConfig(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validate.Struct(config); err != nil {
		// Format validation errors for better readability
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, fieldErr := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"field '%s' failed validation: %s (rule: %s)",
					fieldErr.Field(),
					fieldErr.Error(),
					fieldErr.Tag(),
				))
			}
			return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errMessages, "\n  - "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// DecodeNodeData decodes a node's data map into target (json tags), applying
// default tags first and validate tags last. Failures are ConfigurationErrors
// naming the offending field.
func DecodeNodeData(node *Node, target any) error {
	if err := ApplyDefaults(target); err != nil {
		return nodeConfigError(node, "", err.Error())
	}

	if len(node.Data) > 0 {
		if err := mapToStruct(node.Data, target); err != nil {
			return nodeConfigError(node, decodeErrorField(err), err.Error())
		}
	}

	if err := validate.Struct(target); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fieldErr := validationErrors[0]
			field := strings.TrimPrefix(fieldErr.Namespace(), reflect.Indirect(reflect.ValueOf(target)).Type().Name()+".")
			return nodeConfigError(node, field, fmt.Sprintf(
				"field '%s' failed validation (rule: %s)", field, fieldErr.Tag()))
		}
		return nodeConfigError(node, "", err.Error())
	}
	return nil
}

// ValidateStruct runs validate tags against an already decoded value.
func ValidateStruct(v any) error {
	return validateConfig(v)
}

func nodeConfigError(node *Node, field, message string) *FlowError {
	fe := NewConfigurationError(field, fmt.Sprintf("node %s (%s): %s", node.ID, node.Kind, message))
	fe.NodeID = node.ID
	return fe
}

// decodeErrorField extracts the field name from a mapstructure error such as
// "'max_iterations' expected type 'int', got ...".
func decodeErrorField(err error) string {
	msg := err.Error()
	start := strings.Index(msg, "'")
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], "'")
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
