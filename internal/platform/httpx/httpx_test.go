package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("users: %w", ErrNotFound), http.StatusNotFound, MsgNotFound},
		{ErrDuplicate, http.StatusConflict, MsgDuplicate},
		{ErrForbidden, http.StatusForbidden, MsgForbidden},
		{ErrUnauthorized, http.StatusUnauthorized, MsgUnauthorized},
		{ErrTooManyRequests, http.StatusTooManyRequests, MsgTooMany},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, MsgInternal},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.status, StatusOf(tc.err))
		var body ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.msg, body.Error)
	}
}

func TestRespondErrorValidationKeepsMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("%w: el correo es obligatorio", ErrValidation))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "datos inválidos: el correo es obligatorio", body.Error)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(req, &target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}
