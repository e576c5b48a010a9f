package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordProcedureInvocation(t *testing.T) {
	before := testutil.ToFloat64(procedureInvocations.WithLabelValues("metrics_test_proc", "success"))

	RecordProcedureInvocation("metrics_test_proc", "success", 10*time.Millisecond)
	RecordProcedureInvocation("metrics_test_proc", "success", 20*time.Millisecond)

	after := testutil.ToFloat64(procedureInvocations.WithLabelValues("metrics_test_proc", "success"))
	require.Equal(t, before+2, after)
}

func TestRecordTriggerExecution(t *testing.T) {
	failed := triggerExecutions.WithLabelValues("MetricsTest", "afterSave", "failed")
	before := testutil.ToFloat64(failed)

	RecordTriggerExecution("MetricsTest", "afterSave", false, time.Millisecond)
	RecordTriggerExecution("MetricsTest", "afterSave", true, time.Millisecond)

	require.Equal(t, before+1, testutil.ToFloat64(failed))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordOrgAccessDenied("membership")
	RecordModuleLoad(true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	require.True(t, strings.Contains(body, "tenantcore_org_access_denials_total"))
	require.True(t, strings.Contains(body, "tenantcore_modules_loaded_total"))
}
