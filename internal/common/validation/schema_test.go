// internal/common/validation/schema_test.go
package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateQueryRequest(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{"minimal valid", `{"query": "buildings in Brooklyn"}`, true},
		{"all fields", `{"query": "x", "userId": "u1", "conversationId": "c1"}`, true},
		{"missing query", `{"userId": "u1"}`, false},
		{"empty query", `{"query": ""}`, false},
		{"query too long", `{"query": "` + strings.Repeat("a", 2001) + `"}`, false},
		{"extra field rejected", `{"query": "x", "role": "admin"}`, false},
		{"wrong type", `{"query": 42}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateJSON([]byte(tt.body), QueryRequestSchema)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				assert.NotEmpty(t, result.Describe())
			}
		})
	}
}

func TestValidateJSONMalformedDocument(t *testing.T) {
	_, err := ValidateJSON([]byte("not json"), QueryRequestSchema)
	assert.Error(t, err)
}

func TestValidateInput(t *testing.T) {
	result, err := ValidateInput(map[string]interface{}{"query": "ok"}, QueryRequestSchema)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
