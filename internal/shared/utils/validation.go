package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Size limits (in bytes)
const (
	MaxEnvelopeSize = 1 * 1024 * 1024 // 1MB - one bridge message
	MaxValueSize    = 256 * 1024      // 256KB - one stored setting or event payload
	MaxJSONDepth    = 32
)

// String length limits (in runes)
const (
	MaxIDLength           = 128
	MaxTitleLength        = 256
	MaxTopicLength        = 128
	MaxNotificationLength = 2048
	MaxStatusLength       = 256
	MaxKeyLength          = 256
)

// Regular expressions for validation
var (
	// CommandIDPattern allows alphanumeric, dots, colons, hyphens and underscores (ext.cmd:sub)
	CommandIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)
	// TopicPattern is the same alphabet plus slashes
	TopicPattern = regexp.MustCompile(`^[a-zA-Z0-9._:/-]+$`)
	// SchemaPattern is a SQL-ish identifier used for data.query schema and table
	SchemaPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// JSONSizeValidator validates JSON size limits
type JSONSizeValidator struct {
	maxSize int
}

// NewJSONSizeValidator creates a new validator with the specified max size
func NewJSONSizeValidator(maxSize int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize}
}

// DefaultJSONValidator returns a validator with the envelope limit
func DefaultJSONValidator() *JSONSizeValidator {
	return NewJSONSizeValidator(MaxEnvelopeSize)
}

// ValidateSize checks if the data size is within limits
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	size := len(data)
	if size > v.maxSize {
		return fmt.Errorf("JSON size %d bytes exceeds maximum %d bytes", size, v.maxSize)
	}
	return nil
}

// ValidateJSON validates both size and JSON structure
func (v *JSONSizeValidator) ValidateJSON(data []byte) error {
	// Check size first (faster than parsing)
	if err := v.ValidateSize(data); err != nil {
		return err
	}
	if !sonic.Valid(data) {
		return fmt.Errorf("invalid JSON")
	}
	return nil
}

// ValidateJSONDepth checks if decoded JSON nesting depth is within limits
func ValidateJSONDepth(data interface{}, maxDepth int) error {
	return checkDepth(data, 0, maxDepth)
}

func checkDepth(data interface{}, currentDepth int, maxDepth int) error {
	if currentDepth > maxDepth {
		return fmt.Errorf("JSON nesting depth %d exceeds maximum %d", currentDepth, maxDepth)
	}

	switch v := data.(type) {
	case map[string]interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	}

	return nil
}

// ValidateValue checks an arbitrary decoded JSON value for size and depth
func ValidateValue(value interface{}, fieldName string) error {
	if err := ValidateJSONDepth(value, MaxJSONDepth); err != nil {
		return fmt.Errorf("%s: %w", fieldName, err)
	}
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s is not serializable: %w", fieldName, err)
	}
	if err := NewJSONSizeValidator(MaxValueSize).ValidateSize(data); err != nil {
		return fmt.Errorf("%s: %w", fieldName, err)
	}
	return nil
}

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateCommandID validates a command id
func ValidateCommandID(id string) error {
	if err := ValidateString(id, "command id", 1, MaxIDLength, true); err != nil {
		return err
	}
	if !CommandIDPattern.MatchString(id) {
		return fmt.Errorf("command id contains invalid characters (only alphanumeric, dots, colons, hyphens, and underscores allowed)")
	}
	return nil
}

// ValidateTopic validates an app event topic
func ValidateTopic(topic string) error {
	if err := ValidateString(topic, "topic", 1, MaxTopicLength, true); err != nil {
		return err
	}
	if !TopicPattern.MatchString(topic) {
		return fmt.Errorf("topic contains invalid characters")
	}
	return nil
}

// ValidateIdentifier validates a schema or table name
func ValidateIdentifier(name, fieldName string) error {
	if err := ValidateString(name, fieldName, 1, MaxIDLength, true); err != nil {
		return err
	}
	if !SchemaPattern.MatchString(name) {
		return fmt.Errorf("%s must be an identifier", fieldName)
	}
	return nil
}
