package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	before := testutil.CollectAndCount(HTTPRequestDuration)
	ObserveRequest(http.MethodPost, http.StatusTeapot, 15*time.Millisecond)
	assert.Equal(t, before+1, testutil.CollectAndCount(HTTPRequestDuration))
}

func TestHandlerExposesCollectors(t *testing.T) {
	LoginAttempts.WithLabelValues(LoginUpgraded).Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), `nakit_auth_login_attempts_total{result="upgraded"}`))
}
