package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Action("CREATE", "succeeded")
	r.Action("CREATE", "succeeded")
	r.Action("SKIP", "skipped")
	r.CacheLookup("remote")
	r.Generation(true, 2*time.Second)
	r.Generation(false, time.Second)
	r.RemoteDegraded()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.actions.WithLabelValues("CREATE", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.actions.WithLabelValues("SKIP", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.generations.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.remoteDegraded))
}

func TestRecordersAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.Action("CREATE", "succeeded")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.actions.WithLabelValues("CREATE", "succeeded")))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Action("CREATE", "failed")
		r.CacheLookup("local")
		r.Generation(true, time.Second)
		r.RemoteDegraded()
		assert.NoError(t, r.WriteTextfile("unused"))
	})
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Action("RETIRE", "succeeded")

	path := filepath.Join(t.TempDir(), "velora.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `velora_actions_total{action="RETIRE",outcome="succeeded"} 1`)
}
