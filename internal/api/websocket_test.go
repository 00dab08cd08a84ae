package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/AnimeStoryboard/internal/services"
	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type     string                  `json:"type"`
	Progress services.ProgressUpdate `json:"progress"`
	Kind     string                  `json:"kind"`
	Result   services.BatchResult    `json:"result"`
}

func dialProgress(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/progress" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket 连接失败: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("读取消息失败: %v", err)
	}
	return msg
}

func TestProgressHubRelaysBatch(t *testing.T) {
	s := newTestServer(t)
	seedScenes(s.project, false, "s1", "s2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.handler.Hub.Run(ctx)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn := dialProgress(t, srv, "")
	if msg := readMessage(t, conn); msg.Type != "connected" {
		t.Fatalf("第一条消息应为 connected: %s", msg.Type)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.handler.Hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("客户端没有注册到进度中心")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w, _ := s.do(http.MethodPost, "/api/batch/images", `{}`); w.Code != http.StatusAccepted {
		t.Fatalf("批量生成应返回 202: %d", w.Code)
	}

	// 进度与 batch_done 来自不同队列，到达顺序不固定
	var last services.ProgressUpdate
	done := false
	for !done || last.Status != services.ProgressCompleted {
		msg := readMessage(t, conn)
		switch msg.Type {
		case "progress":
			if msg.Progress.TaskID != services.BatchImage.TaskID() {
				t.Fatalf("任务 ID 错误: %s", msg.Progress.TaskID)
			}
			last = msg.Progress
		case "batch_done":
			if msg.Kind != string(services.BatchImage) || msg.Result.Succeeded != 2 {
				t.Fatalf("批量结果错误: %+v", msg)
			}
			done = true
		}
	}
	if last.Current != 2 || last.Total != 2 {
		t.Fatalf("最终进度错误: %+v", last)
	}
	s.handler.WaitBatches()

	// 已结束的任务订阅后立即收到最终状态
	taskConn := dialProgress(t, srv, "?task="+services.BatchImage.TaskID())
	msg := readMessage(t, taskConn)
	if msg.Type != "progress" || msg.Progress.Status != services.ProgressCompleted {
		t.Fatalf("单任务订阅应收到最终状态: %+v", msg)
	}
}

func TestProgressWebSocketUnknownTask(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(http.MethodGet, "/api/ws/progress?task=batch-missing", "")
	if w.Code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != ErrorNotFound {
		t.Fatalf("未知任务应返回 404: %d %s", w.Code, w.Body.String())
	}
}

func TestProgressHubPublishQueuesMessage(t *testing.T) {
	s := newTestServer(t)
	hub := s.handler.Hub

	hub.Publish(map[string]interface{}{"type": "batch_done"})
	select {
	case data := <-hub.broadcast:
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil || msg["type"] != "batch_done" {
			t.Fatalf("广播内容错误: %s", data)
		}
	default:
		t.Fatal("Publish 应写入广播队列")
	}
}
