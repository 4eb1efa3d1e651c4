package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/careerkit/core"
)

func TestRemoteScorer_ScoreBatch(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var req predictRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "serving_default", req.SignatureName)

		preds := make([]any, len(req.Instances))
		for i, x := range req.Instances {
			// 单输出模型有时以 [v] 形式返回
			if i%2 == 0 {
				preds[i] = x[0] + x[1]
			} else {
				preds[i] = []float64{x[0] + x[1]}
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": preds})
	}))
	defer srv.Close()

	s := NewRemoteScorer(srv.URL, "career", WithVersion("3"), WithInputDim(2),
		WithAuth(&AuthConfig{Type: "bearer", Token: "tk"}))
	logits, err := s.ScoreBatch(context.Background(), [][]float64{{1, 2}, {0.5, 0.5}, {-1, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, -1}, logits)
	assert.Equal(t, "/v1/models/career/versions/3:predict", gotPath)
	assert.Equal(t, "Bearer tk", gotAuth)
	assert.Equal(t, "remote.career", s.Name())

	_, err = s.ScoreBatch(context.Background(), [][]float64{{1, 2, 3}})
	assert.True(t, core.IsValidation(err))

	empty, err := s.ScoreBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRemoteScorer_RowMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":[0.1]}`))
	}))
	defer srv.Close()

	s := NewRemoteScorer(srv.URL, "career")
	_, err := s.ScoreBatch(context.Background(), [][]float64{{1}, {2}})
	assert.True(t, core.IsScorerUnavailable(err))
	assert.Contains(t, err.Error(), "returned 1 predictions for 2 rows")

	// 行宽不一致是输入错误，不访问服务也不计入熔断
	_, err = s.ScoreBatch(context.Background(), [][]float64{{1, 2}, {3}})
	assert.True(t, core.IsValidation(err))
	assert.False(t, core.IsScorerUnavailable(err))
	assert.Equal(t, uint32(1), s.breaker.Counts().TotalFailures)
}

func TestRemoteScorer_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewRemoteScorer(srv.URL, "career", WithBreaker(BreakerConfig{
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}))
	for i := 0; i < 2; i++ {
		_, err := s.ScoreBatch(context.Background(), [][]float64{{1}})
		assert.True(t, core.IsScorerUnavailable(err))
	}
	assert.Equal(t, gobreaker.StateOpen, s.State())

	// 熔断打开后不再访问服务
	_, err := s.ScoreBatch(context.Background(), [][]float64{{1}})
	assert.True(t, core.IsScorerUnavailable(err))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRemoteScorer_Deadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	s := NewRemoteScorer(srv.URL, "career")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.ScoreBatch(ctx, [][]float64{{1}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemoteScorer_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models/career" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"model_version_status":[{"state":"AVAILABLE"}]}`))
	}))
	defer srv.Close()

	require.NoError(t, NewRemoteScorer(srv.URL, "career").Health(context.Background()))
	assert.True(t, core.IsScorerUnavailable(NewRemoteScorer(srv.URL, "other").Health(context.Background())))
}

func TestRemoteScorer_KServeV2(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method == http.MethodGet {
			if r.URL.Path == "/v2/models/career/ready" {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req v2InferRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Inputs, 1)
		in := req.Inputs[0]
		assert.Equal(t, "features", in.Name)
		assert.Equal(t, "FP64", in.Datatype)
		n, dim := in.Shape[0], in.Shape[1]
		sums := make([]float64, n)
		for i := 0; i < n; i++ {
			for j := 0; j < dim; j++ {
				sums[i] += in.Data[i*dim+j]
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model_name": "career",
			"outputs": []map[string]any{
				{"name": "embedding", "shape": []int{n, 1}, "data": make([]float64, n)},
				{"name": "logit", "shape": []int{n, 1}, "data": sums},
			},
		})
	}))
	defer srv.Close()

	s := NewRemoteScorer(srv.URL, "career", WithProtocol(ProtocolKServeV2), WithV2Tensors("features", "logit"))
	logits, err := s.ScoreBatch(context.Background(), [][]float64{{1, 2}, {0.5, 0.5}, {-1, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, -1}, logits)
	assert.Equal(t, "/v2/models/career/infer", gotPath)

	require.NoError(t, s.Health(context.Background()))
	assert.Equal(t, "/v2/models/career/ready", gotPath)

	missing := NewRemoteScorer(srv.URL, "career", WithProtocol(ProtocolKServeV2), WithV2Tensors("features", "prob"))
	_, err = missing.ScoreBatch(context.Background(), [][]float64{{1, 2}})
	assert.True(t, core.IsScorerUnavailable(err))
}
