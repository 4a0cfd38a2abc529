package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraTime-Engine/engine"
)

func TestMetricsRecording(t *testing.T) {
	m := NewMetrics("hieratime", prometheus.NewRegistry())

	m.RecordKernel("add_duration", StatusLabelOK, 10, time.Millisecond)
	m.RecordKernel("add_duration", "ARITHMETIC_OVERFLOW", 10, time.Millisecond)
	m.RecordRequest("zmq", StatusLabelOK, time.Millisecond)
	m.UpdateWorkerPool(engine.PoolStats{Active: 2, Pending: 3, Completed: 4, Failed: 1})

	require.Equal(t, 1.0, testutil.ToFloat64(m.KernelCalls.WithLabelValues("add_duration", StatusLabelOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.KernelCalls.WithLabelValues("add_duration", "ARITHMETIC_OVERFLOW")))
	require.Equal(t, 10.0, testutil.ToFloat64(m.RowsProcessed.WithLabelValues("add_duration")), "failed calls add no rows")
	require.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("zmq", StatusLabelOK)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.WorkerPoolActive))
	require.Equal(t, 3.0, testutil.ToFloat64(m.WorkerPoolPending))
}

func TestMetricsUnregistered(t *testing.T) {
	m := NewMetrics("hieratime", nil)
	m.RecordRequest("tcp", StatusLabelOK, time.Second)
	require.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("tcp", StatusLabelOK)))

	// a second unregistered set does not collide
	_ = NewMetrics("hieratime", nil)
}

func TestMetricsServerHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("hieratime", reg)
	m.RecordKernel("subtract_timestamps", StatusLabelOK, 5, time.Millisecond)

	ts := httptest.NewServer(NewMetricsServer(":0", reg, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), `hieratime_kernel_calls_total{op="subtract_timestamps",status="ok"} 1`), string(body))

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, "OK", string(body))
}

func TestMetricsServerStartStop(t *testing.T) {
	s := NewMetricsServer("127.0.0.1:0", prometheus.NewRegistry(), nil)
	require.Nil(t, s.Addr())
	require.NoError(t, s.StartAsync())

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
