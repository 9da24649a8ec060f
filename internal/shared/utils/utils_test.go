package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	assert.Equal(t, "hi there", PlainText("<b>hi</b> <script>alert(1)</script>there", 0))
	assert.Equal(t, "Tom & Jerry", PlainText("Tom & Jerry", 0))
	assert.Equal(t, "abc", PlainText("  abcdef ", 3))
	assert.Equal(t, "", PlainText("<img src=x onerror=alert(1)>", 0))
}

func TestValidateCommandID(t *testing.T) {
	assert.NoError(t, ValidateCommandID("lab.monitor:refresh"))
	assert.Error(t, ValidateCommandID(""))
	assert.Error(t, ValidateCommandID("has space"))
	assert.Error(t, ValidateCommandID(strings.Repeat("a", MaxIDLength+1)))
}

func TestValidateTopic(t *testing.T) {
	assert.NoError(t, ValidateTopic("data.refresh"))
	assert.NoError(t, ValidateTopic("lab/specimens:new"))
	assert.Error(t, ValidateTopic("bad topic"))
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("public", "schema"))
	assert.NoError(t, ValidateIdentifier("lab_requests", "table"))
	assert.Error(t, ValidateIdentifier("drop table;", "table"))
	assert.Error(t, ValidateIdentifier("1abc", "table"))
}

func TestValidateValueDepth(t *testing.T) {
	var v interface{} = "leaf"
	for i := 0; i < MaxJSONDepth+2; i++ {
		v = []interface{}{v}
	}
	assert.Error(t, ValidateValue(v, "value"))
	assert.NoError(t, ValidateValue(map[string]interface{}{"a": []interface{}{1.0, "b"}}, "value"))
}

func TestJSONSizeValidator(t *testing.T) {
	v := NewJSONSizeValidator(16)
	assert.NoError(t, v.ValidateJSON([]byte(`{"a":1}`)))
	assert.Error(t, v.ValidateJSON([]byte(`{"a":`)))
	assert.Error(t, v.ValidateJSON([]byte(`{"aaaaaaaaaaaaaaaaaa":1}`)))
}
