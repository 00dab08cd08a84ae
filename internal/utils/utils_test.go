package utils

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	logger.Debug("隐藏", nil)
	if buf.Len() != 0 {
		t.Fatalf("默认级别下不应输出 debug: %q", buf.String())
	}

	logger.Info("scene updated", map[string]interface{}{"scene_id": "s1", "field": "imageUrl"})
	out := buf.String()
	if !strings.Contains(out, "scene updated") {
		t.Fatalf("缺少消息: %q", out)
	}
	if strings.Index(out, "field=") > strings.Index(out, "scene_id=") {
		t.Fatalf("字段应按键名排序输出: %q", out)
	}

	buf.Reset()
	logger.SetLogLevel(DEBUG)
	logger.Debugf("batch %d", 3)
	if !strings.Contains(buf.String(), "batch 3") {
		t.Fatalf("调整级别后应输出 debug: %q", buf.String())
	}

	buf.Reset()
	logger.Enable(false)
	logger.Error("关闭后", nil)
	if buf.Len() != 0 {
		t.Fatal("禁用后不应输出")
	}
}

func TestLoggerFatalUsesExitHook(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal("boom", nil)
	if code != 1 {
		t.Fatalf("Fatal 应以 1 退出, 实际 %d", code)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		" WARN ":  WARNING,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, 期望 %v", in, got, want)
		}
	}
}

func TestGenerationMetrics(t *testing.T) {
	m := NewMetricsCollector()
	gm := NewGenerationMetricsWith(m, NewLogger(&bytes.Buffer{}))

	gm.RecordGeneration("image", nil, 20*time.Millisecond)
	gm.RecordGeneration("image", errors.New("x"), 40*time.Millisecond)
	gm.RecordBatch("image", 2, 1)
	gm.SetBatchRunning("audio", true)
	gm.RecordAPIRequest("/api/project", "GET", 200, time.Millisecond)

	if got := m.GetCounterValue("generation_image_total"); got != 2 {
		t.Fatalf("调用总数错误: %d", got)
	}
	if got := m.GetCounterValue("generation_image_failed"); got != 1 {
		t.Fatalf("失败数错误: %d", got)
	}
	if got := m.GetGauge("batch_audio_running"); got != 1 {
		t.Fatalf("运行标记错误: %d", got)
	}

	snap := m.GetMetrics()
	hist := snap["histograms"].(map[string]map[string]int64)["generation_image_ms"]
	if hist["count"] != 2 || hist["min"] != 20 || hist["max"] != 40 || hist["sum"] != 60 {
		t.Fatalf("直方图错误: %+v", hist)
	}
	if snap["counters"].(map[string]int64)["api_responses_2xx"] != 1 {
		t.Fatal("状态码分组计数错误")
	}
}
