package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCascadeRun(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(cascadeRuns.WithLabelValues("ok"))
	beforeUpdated := testutil.ToFloat64(cascadeUpdated)

	RecordCascadeRun("ok", 3, 20*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(cascadeRuns.WithLabelValues("ok")))
	assert.Equal(t, beforeUpdated+3, testutil.ToFloat64(cascadeUpdated))
}

func TestRecordFlowActionOutcome(t *testing.T) {
	Register()

	okBefore := testutil.ToFloat64(flowActions.WithLabelValues("accept", "ok"))
	rejectedBefore := testutil.ToFloat64(flowActions.WithLabelValues("accept", "rejected"))

	RecordFlowAction("accept", "ok")
	RecordFlowAction("accept", "rejected")

	assert.Equal(t, okBefore+1, testutil.ToFloat64(flowActions.WithLabelValues("accept", "ok")))
	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(flowActions.WithLabelValues("accept", "rejected")))
}

func TestHandlerExposesTreeflowMetrics(t *testing.T) {
	Register()
	RecordNotification("registration-open")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `treeflow_notifications_sent_total{kind="registration-open"}`))
}
