package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapsKnownKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"invalid key", ErrInvalidKey, http.StatusBadRequest},
		{"bad request", ErrBadRequest, http.StatusBadRequest},
		{"unsupported content", ErrUnsupportedContent, http.StatusBadRequest},
		{"unsupported operation", ErrUnsupportedOperation, http.StatusUnsupportedMediaType},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"payload too large", ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{"lock poisoned", ErrLockPoisoned, http.StatusInternalServerError},
		{"encoding failed", ErrEncodingFailed, http.StatusInternalServerError},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"untyped", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestIsMatchesByKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("read %q: %w", "k", Wrap(KindNotFound, "missing", stderrors.New("cause")))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrLockPoisoned)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestMessageHidesUntypedDetail(t *testing.T) {
	assert.Equal(t, "internal server error", Message(stderrors.New("db password=hunter2")))
	assert.Equal(t, "key not found", Message(ErrNotFound))
	assert.Equal(t, "missing: cause", Wrap(KindNotFound, "missing", stderrors.New("cause")).Error())
	assert.Equal(t, "missing", Message(Wrap(KindNotFound, "missing", stderrors.New("cause"))))
}

func TestKindOfUntypedIsUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(stderrors.New("x")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
