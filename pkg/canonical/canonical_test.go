package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeKeyOrderIndependent(t *testing.T) {
	var a, b map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"b": 1, "a": {"y": [1, 2], "x": null}}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"a": {"x": null, "y": [1, 2]}, "b": 1}`), &b))

	encodedA, err := Marshal(a)
	require.NoError(t, err)

	encodedB, err := Marshal(b)
	require.NoError(t, err)

	require.Equal(t, string(encodedA), string(encodedB))
	require.Equal(t, `{"a":{"x":null,"y":[1,2]},"b":1}`, string(encodedA))
}

func TestCanonicalizePreservesArrayOrder(t *testing.T) {
	encoded, err := Marshal(map[string]any{
		"items": []any{3.0, 1.0, 2.0},
	})
	require.NoError(t, err)
	require.Equal(t, `{"items":[3,1,2]}`, string(encoded))
}

func TestCanonicalizeNestedObjectsInArrays(t *testing.T) {
	encoded, err := Marshal([]any{
		map[string]any{"z": true, "a": "first"},
		map[string]any{"m": map[string]any{"q": 1.0, "p": 2.0}},
	})
	require.NoError(t, err)
	require.Equal(t, `[{"a":"first","z":true},{"m":{"p":2,"q":1}}]`, string(encoded))
}

func TestCanonicalizeStructRoundTrip(t *testing.T) {
	type inner struct {
		Second string `json:"second"`
		First  string `json:"first"`
	}

	encoded, err := Marshal(inner{Second: "2", First: "1"})
	require.NoError(t, err)
	require.Equal(t, `{"first":"1","second":"2"}`, string(encoded))
}

func TestHashStable(t *testing.T) {
	h1, err := Hash(map[string]any{"b": 2.0, "a": 1.0})
	require.NoError(t, err)

	h2, err := Hash(map[string]any{"a": 1.0, "b": 2.0})
	require.NoError(t, err)

	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)
}
