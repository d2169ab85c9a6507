package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackww/backend/core/schema"
)

const feedbackSchema = `{
	"$id": "https://trackww.example.com/feedback.json",
	"type": "object",
	"properties": {
		"user_id": {"type": "string"},
		"feedback": {"type": "string", "minLength": 1}
	},
	"required": ["user_id", "feedback"]
}`

func TestValidator(t *testing.T) {
	v, err := schema.NewValidator([]string{feedbackSchema}, nil)
	require.NoError(t, err)

	assert.True(t, v.HasSchema("https://trackww.example.com/feedback.json"))
	assert.False(t, v.HasSchema("https://trackww.example.com/other.json"))

	err = v.ValidateString(`{"user_id": "jdoe", "feedback": "works"}`, "https://trackww.example.com/feedback.json")
	assert.NoError(t, err)

	err = v.ValidateString(`{"user_id": "jdoe"}`, "https://trackww.example.com/feedback.json")
	assert.Error(t, err)

	err = v.ValidateString(`{}`, "https://trackww.example.com/other.json")
	assert.ErrorContains(t, err, "unknown schema")
}

func TestValidatorRejectsSchemaWithoutID(t *testing.T) {
	_, err := schema.NewValidator([]string{`{"type": "object"}`}, nil)
	assert.Error(t, err)
}

func TestNilValidatorHasNoSchemas(t *testing.T) {
	var v *schema.Validator
	assert.False(t, v.HasSchema("anything"))
}
