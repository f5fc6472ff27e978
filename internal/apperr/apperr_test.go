package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassOfWrapped(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ClassTransientDependency, "asr call failed", cause)

	assert.Equal(t, ClassTransientDependency, ClassOf(err))
	assert.True(t, IsRetriable(err))
	assert.False(t, IsSoftDegrade(err))
	assert.ErrorIs(t, err, cause)
}

func TestClassOfUnclassifiedDefaultsInternal(t *testing.T) {
	assert.Equal(t, ClassInternal, ClassOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, HTTPStatus(ClassInvalidInput))
	assert.Equal(t, 404, HTTPStatus(ClassNotFound))
	assert.Equal(t, 409, HTTPStatus(ClassConflict))
	assert.Equal(t, 500, HTTPStatus(ClassInternal))
}
