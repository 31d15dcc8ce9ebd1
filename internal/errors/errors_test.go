package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"trialrand/domain/core"
)

func TestFromDomain_Codes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{core.NewInvalidParameterError("n", "must be positive"), CodeInvalidParameter},
		{fmt.Errorf("stratum %q: %w", "Small", core.NewInvalidParameterError("levels", "too few")), CodeInvalidParameter},
		{core.NewEmptyInputError("strata"), CodeEmptyInput},
		{core.NewHashMismatchError("a", "b"), CodeNotReproducible},
		{core.NewNotFoundError("run", "x"), CodeNotFound},
		{stderrors.New("boom"), CodeInternalError},
	}

	for _, tt := range tests {
		err := FromDomain(tt.err, "generation failed")
		assert.Equal(t, tt.code, GetCode(err), tt.err.Error())
		assert.True(t, stderrors.Is(err, tt.err), "cause must stay reachable")
	}

	assert.Nil(t, FromDomain(nil, "ignored"))
}

func TestWrap_PreservesCode(t *testing.T) {
	base := ConfigInvalid("PORT is required")
	wrapped := Wrap(base, "failed to load configuration")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.Equal(t, "failed to load configuration: PORT is required", wrapped.Error())
	assert.Equal(t, CodeInternalError, GetCode(Wrap(stderrors.New("x"), "y")))
	assert.Nil(t, Wrap(nil, "nothing"))
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestWrapf(t *testing.T) {
	err := Wrapf(stderrors.New("disk full"), "writing %s", "schedule.csv")
	assert.Equal(t, "writing schedule.csv: disk full", err.Error())
}
