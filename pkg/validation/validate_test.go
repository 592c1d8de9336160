package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vberkoz/kvgate/pkg/apierr"
)

func TestNamespace(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "app", wantErr: false},
		{name: "with digits and hyphens", input: "my-app-2", wantErr: false},
		{name: "max length", input: strings.Repeat("a", 50), wantErr: false},
		{name: "empty", input: "", wantErr: true},
		{name: "uppercase rejected", input: "App", wantErr: true},
		{name: "underscore rejected", input: "my_app", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 51), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Namespace(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apierr.Is(err, apierr.CodeValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "user1", wantErr: false},
		{name: "colon separated", input: "user:1", wantErr: false},
		{name: "dots underscores hyphens", input: "a.b_c-d", wantErr: false},
		{name: "max length", input: strings.Repeat("k", 255), wantErr: false},
		{name: "empty", input: "", wantErr: true},
		{name: "space rejected", input: "user 1", wantErr: true},
		{name: "slash rejected", input: "a/b", wantErr: true},
		{name: "too long", input: strings.Repeat("k", 256), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Key(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValue(t *testing.T) {
	size, err := Value(map[string]string{"name": "John"})
	require.NoError(t, err)
	assert.Greater(t, size, 0)

	big := json.RawMessage(`"` + strings.Repeat("x", MaxValueBytes) + `"`)
	_, err = Value(big)
	assert.Error(t, err)
}

func TestValue_AbsentRejected(t *testing.T) {
	// A nil RawMessage marshals to "null"; it must not pass as a value.
	_, err := Value(json.RawMessage(nil))
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeValidation))

	_, err = Value(json.RawMessage(""))
	assert.Error(t, err)

	// An explicit JSON null is a value the client chose to store.
	size, err := Value(json.RawMessage("null"))
	require.NoError(t, err)
	assert.Equal(t, 4, size)
}

func TestCredentialName(t *testing.T) {
	assert.NoError(t, CredentialName("ci-deploy"))
	assert.Error(t, CredentialName("ab"))
	assert.Error(t, CredentialName(""))
}
