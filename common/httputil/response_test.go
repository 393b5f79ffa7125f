package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name   string
		status int
		data   any
		want   string
	}{
		{name: "map", status: http.StatusOK, data: map[string]string{"k": "v"}, want: `{"k":"v"}`},
		{name: "empty slice", status: http.StatusOK, data: []string{}, want: `[]`},
		{name: "struct", status: http.StatusCreated, data: struct {
			ID string `json:"id"`
		}{"123"}, want: `{"id":"123"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.status, tt.data)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusUnprocessableEntity, `unknown event type "Nope"`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, `unknown event type "Nope"`, resp.Error)
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name     string
		body     string
		maxBytes int64
		wantErr  bool
	}{
		{name: "valid", body: `{"name":"x"}`},
		{name: "unknown field", body: `{"name":"x","extra":1}`, wantErr: true},
		{name: "trailing value", body: `{"name":"x"}{"name":"y"}`, wantErr: true},
		{name: "malformed", body: `{`, wantErr: true},
		{name: "too large", body: `{"name":"xxxxxxxxxxxxxxxx"}`, maxBytes: 8, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			var dst payload
			err := DecodeJSON(w, r, &dst, tt.maxBytes)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", dst.Name)
		})
	}
}
