package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{body: `{"error":"room is full"}`, want: "room is full"},
		{body: `{"error":{"code":400,"message":"EMAIL_EXISTS"}}`, want: "EMAIL_EXISTS"},
		{body: `{"success":false,"message":"bad input"}`, want: "bad input"},
		{body: "upstream timeout", want: "upstream timeout"},
		{body: "", want: ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorMessage(strings.NewReader(tc.body)), tc.body)
	}
}

func TestDecodeJSONToleratesEmptyBody(t *testing.T) {
	var out struct{ Name string }
	require.NoError(t, DecodeJSON(strings.NewReader(""), &out))
	require.NoError(t, DecodeJSON(strings.NewReader(`{"Name":"x"}`), &out))
	assert.Equal(t, "x", out.Name)
	assert.Error(t, DecodeJSON(strings.NewReader(`{`), &out))
}
