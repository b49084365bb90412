package httputil_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/retailops-backend/pkg/errors"
	"github.com/retailops/retailops-backend/pkg/httputil"
)

func TestEnvelope_SuccessFlagFollowsStatus(t *testing.T) {
	body, err := httputil.Envelope(201, map[string]string{"id": "t-1"})
	require.NoError(t, err)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
}

func TestErrorEnvelope_AppError(t *testing.T) {
	status, body := httputil.ErrorEnvelope(
		errors.Invariant("INVARIANT_OVERPACK", "sent quantity exceeds requested quantity"))

	assert.Equal(t, 422, status)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVARIANT_OVERPACK", resp.Error.Code)
	assert.Equal(t, "sent quantity exceeds requested quantity", resp.Error.Message)
}

func TestErrorEnvelope_UnknownErrorDefaultsToInternal(t *testing.T) {
	status, body := httputil.ErrorEnvelope(plainError{})

	assert.Equal(t, 500, status)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
}

type plainError struct{}

func (plainError) Error() string { return "boom" }

func TestWriteRaw_RoundTripsEnvelope(t *testing.T) {
	body, err := httputil.Envelope(200, map[string]string{"state": "packaged"})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	httputil.WriteRaw(rr, 200, body)

	assert.Equal(t, 200, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, string(body), rr.Body.String())
}
