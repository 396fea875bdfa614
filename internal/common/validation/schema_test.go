package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requestSchema = `{
  "type": "object",
  "required": ["templateId", "zipUrl"],
  "properties": {
    "templateId": {"type": "string", "minLength": 1},
    "zipUrl":     {"type": "string", "minLength": 1}
  }
}`

func TestSchema_Validate(t *testing.T) {
	s := MustCompileSchema(requestSchema)

	tests := []struct {
		name    string
		doc     map[string]interface{}
		valid   bool
		errorOn string
	}{
		{
			name:  "valid",
			doc:   map[string]interface{}{"templateId": "t-1", "zipUrl": "https://x/t.zip"},
			valid: true,
		},
		{
			name:    "missing zipUrl",
			doc:     map[string]interface{}{"templateId": "t-1"},
			errorOn: "zipUrl",
		},
		{
			name:    "empty templateId",
			doc:     map[string]interface{}{"templateId": "", "zipUrl": "u"},
			errorOn: "templateId",
		},
		{
			name:    "wrong type",
			doc:     map[string]interface{}{"templateId": 7, "zipUrl": "u"},
			errorOn: "templateId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Validate(tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			if tt.errorOn != "" {
				assert.True(t, res.HasErrors(tt.errorOn), res.GetErrorMessages())
			}
		})
	}
}

func TestValidateDocument_BadSchema(t *testing.T) {
	_, err := ValidateDocument(`{"type": 12}`, map[string]interface{}{})
	assert.Error(t, err)
}

func TestValidateActivityNaming(t *testing.T) {
	assert.NoError(t, ValidateActivityNaming("template.process-zip"))
	assert.NoError(t, ValidateActivityNaming("crm.user.create"))
	assert.Error(t, ValidateActivityNaming("Template.Process"))
	assert.Error(t, ValidateActivityNaming("template"))
}
