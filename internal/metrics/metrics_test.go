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

	"github.com/born-ml/playlistnet/internal/model"
)

func TestObserveStep(t *testing.T) {
	m := New(model.ArchRNN)

	m.ObserveStep(model.ModeTrain, model.StepResult{Loss: 2.5, LearningRate: 0.5, GradNorm: 3}, 10*time.Millisecond)
	m.ObserveStep(model.ModeTrain, model.StepResult{Loss: 2.0, LearningRate: 0.5, GradNorm: 2}, 10*time.Millisecond)
	m.ObserveStep(model.ModeValid, model.StepResult{Loss: 4.0}, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.steps.WithLabelValues("train")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.steps.WithLabelValues("valid")), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.loss.WithLabelValues("train")), 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.gradNorm), 1e-9)
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.learningRate), 1e-9)
}

func TestObserveRewardAndCheckpoints(t *testing.T) {
	m := New(model.ArchCNN)

	m.ObserveReward(-0.25, 12)
	m.ObservePerplexity(model.ModeRL, 7)
	m.CheckpointSaved()
	m.CheckpointSaved()

	assert.InDelta(t, -0.25, testutil.ToFloat64(m.reward), 1e-9)
	assert.InDelta(t, 12, testutil.ToFloat64(m.avgLength), 1e-9)
	assert.InDelta(t, 7, testutil.ToFloat64(m.perplexity.WithLabelValues("rl")), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.checkpoints), 0)
}

func TestHandler(t *testing.T) {
	m := New(model.ArchCNN)
	m.ObserveStep(model.ModeTrain, model.StepResult{Loss: 1}, time.Millisecond)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `playlistnet_steps_total{arch="cnn",mode="train"} 1`))

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
