package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusHTTPMapping(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusNotFound:         http.StatusNotFound,
		StatusEmptyUpdateSet:   http.StatusBadRequest,
		StatusValidationFailed: http.StatusBadRequest,
		StatusInvalidOrder:     http.StatusBadRequest,
		StatusLimitReached:     http.StatusConflict,
		StatusForbidden:        http.StatusForbidden,
		StatusInternal:         http.StatusInternalServerError,
		CoreStatus("whatever"): http.StatusInternalServerError,
	}

	for status, want := range cases {
		require.Equal(t, want, status.HTTPStatus(), string(status))
	}
}

func TestIsFollowsWrappedErrors(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("redeem: %w", LimitReached("user mint cap reached", cause))

	require.True(t, Is(err, StatusLimitReached))
	require.False(t, Is(err, StatusNotFound))
	require.ErrorIs(t, err, cause)
	require.Equal(t, StatusUnknown, StatusOf(cause))
}

func TestJSONHidesInternalCause(t *testing.T) {
	internal := Internal("failed to load campaign", errors.New("dial tcp: refused")).(BaseError)
	body := internal.JSON().(map[string]interface{})["error"].(map[string]interface{})
	require.Equal(t, "failed to load campaign", body["message"])

	notFound := NotFound("coupon not found", errors.New("reward sold out")).(BaseError)
	body = notFound.JSON().(map[string]interface{})["error"].(map[string]interface{})
	require.Equal(t, "coupon not found: reward sold out", body["message"])
}
