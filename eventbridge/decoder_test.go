package eventbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backendbridge "github.com/opengovern/backend-bridge"
)

func TestDecode(t *testing.T) {
	payload, typ, err := Decode([]byte(`{"type":"extension_created","data":{"id":"e1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "extension_created", typ)
	assert.Equal(t, map[string]any{"id": "e1"}, payload["data"])

	// data may be null, but it must be present
	_, _, err = Decode([]byte(`{"type":"ping","data":null}`))
	assert.NoError(t, err)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`[1,2,3]`,
		`"text"`,
		`{"data":{}}`,
		`{"type":"","data":{}}`,
		`{"type":7,"data":{}}`,
		`{"type":"x"}`,
	} {
		_, _, err := Decode([]byte(raw))
		require.Error(t, err, raw)
		assert.Equal(t, backendbridge.KindDecodeError, backendbridge.KindOf(err), raw)

		var nerr *backendbridge.NormalizedError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, map[string]any{"bytes": len(raw)}, nerr.Details)
	}
}

func TestEncodeDecode(t *testing.T) {
	b, err := Encode("usage_updated", map[string]any{"used": 3.0})
	require.NoError(t, err)

	payload, typ, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "usage_updated", typ)
	assert.Equal(t, map[string]any{"used": 3.0}, payload["data"])
}
