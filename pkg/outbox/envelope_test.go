package outbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid", raw: `{"version":1,"eventId":"e-1","data":{"n":3}}`},
		{name: "not an object", raw: `"nope"`, wantErr: true},
		{name: "missing event id", raw: `{"version":1,"data":{}}`, wantErr: true},
		{name: "future version", raw: `{"version":9,"eventId":"e-2","data":{}}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEnvelope(json.RawMessage(tc.raw))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBindDecodesData(t *testing.T) {
	env, err := DecodeEnvelope(json.RawMessage(`{"version":1,"eventId":"e-1","data":{"n":3}}`))
	require.NoError(t, err)

	var data struct {
		N int `json:"n"`
	}
	require.NoError(t, env.Bind(&data))
	assert.Equal(t, 3, data.N)

	assert.Error(t, PayloadEnvelope{EventID: "e-2"}.Bind(&data))
}
