package llmgateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAgainstSchema_Matching(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"namespace"},
	}
	args := map[string]interface{}{"namespace": "prod"}

	assert.NoError(t, validateAgainstSchema(schema, args))
}

func TestValidateAgainstSchema_Mismatch(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"replicas": map[string]interface{}{"type": "integer"},
		},
		"required": []interface{}{"replicas"},
	}
	args := map[string]interface{}{"replicas": "not-a-number"}

	err := validateAgainstSchema(schema, args)
	require.Error(t, err)
}

func TestEnrichArgs_UsesSchemaTypeWhenKnown(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{"type": "string", "description": "k8s namespace"},
		},
	}
	raw := map[string]interface{}{"namespace": "prod", "extra": 3.0}

	out := enrichArgs(raw, schema)

	require.Contains(t, out, "namespace")
	assert.Equal(t, "string", out["namespace"].Type)
	assert.Equal(t, "k8s namespace", out["namespace"].Description)

	require.Contains(t, out, "extra")
	assert.Equal(t, "number", out["extra"].Type)
}

func TestInferType(t *testing.T) {
	assert.Equal(t, "null", inferType(nil))
	assert.Equal(t, "boolean", inferType(true))
	assert.Equal(t, "number", inferType(float64(1)))
	assert.Equal(t, "string", inferType("x"))
	assert.Equal(t, "array", inferType([]interface{}{1, 2}))
}
