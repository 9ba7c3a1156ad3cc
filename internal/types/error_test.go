package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToCustomError(t *testing.T) {
	cases := []struct {
		err  error
		code int
		typ  string
	}{
		{fmt.Errorf("si 7: %w", ErrNotFound), http.StatusNotFound, "notFound"},
		{InvalidParamf("page %q", "x"), http.StatusBadRequest, "invalidParam"},
		{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{Configf("no filter available for field %s", "number"), http.StatusInternalServerError, "configuration"},
		{errors.New("boom"), http.StatusInternalServerError, "unknown"},
	}

	for _, tc := range cases {
		ce := ToCustomError(tc.err)
		assert.Equal(t, tc.code, ce.Code, tc.err.Error())
		assert.Equal(t, tc.typ, ce.Type, tc.err.Error())
	}
}

func TestToCustomErrorPassthrough(t *testing.T) {
	in := &CustomError{Code: http.StatusConflict, Message: "conflict", Type: "version"}
	assert.Same(t, in, ToCustomError(fmt.Errorf("wrapped: %w", in)))
}

func TestConfigfWraps(t *testing.T) {
	err := Configf("missing %s", "fields_display")
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "missing fields_display")
}
