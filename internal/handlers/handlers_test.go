package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	fws "github.com/fasthttp/websocket"

	"github.com/codebuildervaibhav/video-transcription/internal/progress"
	"github.com/codebuildervaibhav/video-transcription/internal/storage"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

type fakeOutcomes struct {
	records map[string]storage.OutcomeRecord
	limit   int
}

func (f *fakeOutcomes) ListOutcomes(limit int) ([]storage.OutcomeRecord, error) {
	f.limit = limit
	out := make([]storage.OutcomeRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeOutcomes) GetOutcome(jobID string) (*storage.OutcomeRecord, error) {
	r, ok := f.records[jobID]
	if !ok {
		return nil, storage.ErrOutcomeNotFound
	}
	return &r, nil
}

func newTestApp(t *testing.T, outcomes OutcomeStore) (*StatusHandler, *progress.Tracker) {
	t.Helper()
	tracker := progress.NewTracker()
	logs := NewLogBuffer()
	fmt.Fprintln(logs, "first line")
	return NewStatusHandler(tracker, outcomes, logs, "test"), tracker
}

func getJSON(t *testing.T, status *StatusHandler, tracker *progress.Tracker, path string, wantCode int) map[string]any {
	t.Helper()
	app := NewApp(status, NewStreamHandler(tracker), false)
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		t.Fatalf("GET %s status = %d, want %d", path, resp.StatusCode, wantCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return body
}

func TestHealth(t *testing.T) {
	status, tracker := newTestApp(t, nil)
	body := getJSON(t, status, tracker, "/health", 200)
	if body["status"] != "healthy" || body["version"] != "test" {
		t.Errorf("health = %v", body)
	}
}

func TestProgress(t *testing.T) {
	status, tracker := newTestApp(t, nil)
	tracker.Start(4)
	tracker.Complete(types.Succeed("1", "/v/a.mp4", "/o/a.txt", "hello", 1))

	body := getJSON(t, status, tracker, "/progress", 200)
	if body["total"] != float64(4) || body["completed"] != float64(1) || body["percent"] != float64(25) {
		t.Errorf("progress = %v", body)
	}
	if body["done"] != false || body["last"] != "a.mp4" {
		t.Errorf("progress = %v", body)
	}
	if _, ok := body["started"].(string); !ok {
		t.Errorf("progress missing started: %v", body)
	}
}

func TestLogs(t *testing.T) {
	status, tracker := newTestApp(t, nil)
	body := getJSON(t, status, tracker, "/logs", 200)
	lines, ok := body["logs"].([]any)
	if !ok || len(lines) != 1 || lines[0] != "first line" {
		t.Errorf("logs = %v", body["logs"])
	}
}

func TestOutcomesDisabled(t *testing.T) {
	status, tracker := newTestApp(t, nil)
	getJSON(t, status, tracker, "/outcomes", 503)
	getJSON(t, status, tracker, "/outcomes/x/text", 503)
}

func TestOutcomesListAndText(t *testing.T) {
	dir := t.TempDir()
	transcript := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(transcript, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	store := &fakeOutcomes{records: map[string]storage.OutcomeRecord{
		"ok":      {JobID: "ok", Status: "completed", OutputPath: transcript},
		"failed":  {JobID: "failed", Status: "failed", Kind: "ExtractionError"},
		"deleted": {JobID: "deleted", Status: "completed", OutputPath: filepath.Join(dir, "gone.txt")},
	}}
	status, tracker := newTestApp(t, store)
	app := NewApp(status, NewStreamHandler(tracker), false)

	resp, err := app.Test(httptest.NewRequest("GET", "/outcomes?limit=10", nil))
	if err != nil {
		t.Fatal(err)
	}
	var records []storage.OutcomeRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(records) != 3 || store.limit != 10 {
		t.Errorf("got %d records with limit %d", len(records), store.limit)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/outcomes/ok/text", nil))
	if err != nil {
		t.Fatal(err)
	}
	text, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(text) != "hello world" {
		t.Errorf("text = %d %q", resp.StatusCode, text)
	}

	for _, id := range []string{"missing", "failed", "deleted"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/outcomes/"+id+"/text", nil))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != 404 {
			t.Errorf("%s: status = %d, want 404", id, resp.StatusCode)
		}
	}

	getJSON(t, status, tracker, "/outcomes?limit=0", 400)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	status, tracker := newTestApp(t, nil)
	app := NewApp(status, NewStreamHandler(tracker), false)
	resp, err := app.Test(httptest.NewRequest("GET", "/ws/progress", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 426 {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestProgressStream(t *testing.T) {
	status, tracker := newTestApp(t, nil)
	tracker.Start(2)
	app := NewApp(status, NewStreamHandler(tracker), false)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	conn, _, err := fws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/progress", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if first["total"] != float64(2) || first["completed"] != float64(0) {
		t.Errorf("initial = %v", first)
	}

	tracker.Complete(types.Succeed("1", "/v/a.mp4", "/o/a.txt", "", 0))
	tracker.Complete(types.Fail("2", "/v/b.mp4", types.NewJobError(types.KindExtraction, "no audio", nil)))

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("stream ended before completion: %v", err)
		}
		if msg["completed"] == float64(2) {
			if msg["done"] != true || msg["failed"] != float64(1) {
				t.Errorf("final = %v", msg)
			}
			break
		}
	}

	// Server closes after the final snapshot.
	if _, _, err := conn.ReadMessage(); !fws.IsCloseError(err, fws.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestLogBufferKeepsLastLines(t *testing.T) {
	lb := NewLogBuffer()
	for i := 0; i < maxLogLines+5; i++ {
		fmt.Fprintf(lb, "line %d\n", i)
	}
	logs := lb.GetLogs()
	if len(logs) != maxLogLines {
		t.Fatalf("len = %d", len(logs))
	}
	if logs[0] != "line 5" {
		t.Errorf("oldest = %q", logs[0])
	}
	logs[0] = "changed"
	if lb.GetLogs()[0] != "line 5" {
		t.Error("GetLogs must return a copy")
	}
}
