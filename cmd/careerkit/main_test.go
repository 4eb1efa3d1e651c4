package main

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig 写出 2 维 embedding 的目录、画像、模型与配置文件，返回配置路径。
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()

	var lines []string
	for i := 0; i < 40; i++ {
		theta := float64(i) * 0.04
		tags := `["analysis"]`
		if i%2 == 0 {
			tags = `["software", "analysis"]`
		}
		lines = append(lines, fmt.Sprintf(`{"job_id":"15-%04d","title":"job %d","embedding":[%v,%v],"tags":%s}`,
			2000+i, i, math.Cos(theta), math.Sin(theta), tags))
	}
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}
	catalog := write("catalog.jsonl", strings.Join(lines, "\n"))
	profiles := write("profiles.json", `[{"user_id":"u1","embedding":[1,0],"riasec":[0.2,0.8,0.1,0.4,0.3,0.5]}]`)
	modelPath := write("model.json", `{"type":"logistic","name":"lr-cli","embedding_dim":2,"named_weights":{"cand_emb_1":1.5}}`)

	return write("careerkit.yaml", fmt.Sprintf(`
embedding_dim: 2
catalog: {path: %q}
profiles: {path: %q}
scorer: {model_path: %q}
%s`, catalog, profiles, modelPath, extra))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRecommendCommand(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := execute(t, "recommend", "-c", cfg, "-u", "u1", "-k", "3", "--tags", "Software", "--min-tag-match", "1")
	require.NoError(t, err)

	var resp struct {
		RequestID string `json:"request_id"`
		Reason    string `json:"reason"`
		Degraded  bool   `json:"degraded"`
		Items     []struct {
			JobID      string   `json:"job_id"`
			FinalScore float64  `json:"final_score"`
			RankScore  *float64 `json:"rank_score"`
			Policy     string   `json:"policy"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "ok", resp.Reason)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Items, 3)
	for _, it := range resp.Items {
		require.NotNil(t, it.RankScore)
		assert.Equal(t, "deterministic", it.Policy)
		assert.True(t, strings.HasPrefix(it.JobID, "15-20"))
	}
}

func TestRecommendCommand_EmptyWithReason(t *testing.T) {
	cfg := writeConfig(t, "")
	out, err := execute(t, "recommend", "-c", cfg, "-u", "u1", "--tags", "archeology", "--min-tag-match", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"filters_too_strict"`)
	assert.Contains(t, out, `"items": []`)
}

func TestRecommendCommand_Errors(t *testing.T) {
	cfg := writeConfig(t, "")

	_, err := execute(t, "recommend", "-c", cfg)
	assert.ErrorContains(t, err, "user")

	_, err = execute(t, "recommend", "-c", cfg, "-u", "ghost")
	assert.ErrorContains(t, err, "profile not found")

	_, err = execute(t, "recommend", "-c", filepath.Join(t.TempDir(), "nope.yaml"), "-u", "u1")
	assert.Error(t, err)

	_, err = execute(t, "recommend", "-c", cfg, "-u", "u1", "--exclude-seen")
	assert.ErrorContains(t, err, "exclude_seen")
}

func TestOutcomeCommand(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := execute(t, "outcome", "-c", cfg, "--job-id", "152001", "-u", "u1", "--clicked", "--timestamp", "2024-05-01T12:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, `"recorded": true`)

	_, err = execute(t, "outcome", "-c", cfg, "--job-id", "152001", "--timestamp", "yesterday")
	assert.ErrorContains(t, err, "timestamp")

	_, err = execute(t, "outcome", "-c", cfg, "--job-id", "152001", "--shown=false", "--clicked")
	assert.ErrorContains(t, err, "clicked but not shown")
}

func TestValidateCommand(t *testing.T) {
	cfg := writeConfig(t, "selection: {policy: ucb}\n")

	out, err := execute(t, "validate", "-c", cfg, "--json")
	require.NoError(t, err)

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "ok", summary["status"])
	assert.EqualValues(t, 40, summary["candidates"])
	assert.Equal(t, "memory_candidate", summary["catalog"])
	assert.EqualValues(t, 21, summary["feature_dim"])
	assert.Equal(t, "ucb", summary["policy"])
	assert.Equal(t, "lr-cli", summary["scorer"])
	assert.Equal(t, "memory_outcome", summary["outcomes"])
}
