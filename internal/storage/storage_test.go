package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

func TestSaveTranscriptAtomic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "transcriptions")
	out := filepath.Join(dir, "clip.txt")

	ls := NewLocalStorage(false)
	if err := ls.SaveTranscript(out, "first", nil); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	if err := ls.SaveTranscript(out, "second version", nil); err != nil {
		t.Fatalf("SaveTranscript overwrite: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second version" {
		t.Errorf("content = %q", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("output dir holds %v, want only clip.txt", names)
	}
}

func TestSaveTranscriptEmptyText(t *testing.T) {
	out := filepath.Join(t.TempDir(), "silent.txt")
	if err := NewLocalStorage(false).SaveTranscript(out, "", nil); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("empty transcript not written: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
}

func TestSaveTranscriptSidecar(t *testing.T) {
	out := filepath.Join(t.TempDir(), "talk.txt")
	meta := &TranscriptMeta{JobID: "job-1", SourcePath: "/videos/talk.mp4", WordCount: 3, Model: "en-small"}

	if err := NewLocalStorage(true).SaveTranscript(out, "one two three", meta); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	raw, err := os.ReadFile(MetaPath(out))
	if err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	var got TranscriptMeta
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("sidecar is not JSON: %v", err)
	}
	if got.JobID != "job-1" || got.WordCount != 3 || got.LocalPath != out {
		t.Errorf("sidecar = %+v", got)
	}
}

func TestMetaPath(t *testing.T) {
	if got := MetaPath("/out/clip - dup1.txt"); got != "/out/clip - dup1_meta.json" {
		t.Errorf("MetaPath = %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"plain.txt":     "plain.txt",
		"../etc/passwd": "passwd",
		`a:b*c?.txt`:    "a_b_c_.txt",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
	if got := sanitizeFilename(strings.Repeat("x", 300)); len(got) != 100 {
		t.Errorf("long name length = %d, want 100", len(got))
	}
}

func openTestDB(t *testing.T) *MetadataDB {
	t.Helper()
	db, err := NewMetadataDB(filepath.Join(t.TempDir(), "metadata.db"))
	if err != nil {
		t.Fatalf("NewMetadataDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMetadataDBOutcomes(t *testing.T) {
	db := openTestDB(t)

	start := time.Date(2025, 1, 23, 14, 30, 0, 0, time.UTC)
	batchID, err := db.StartBatch("/videos", start)
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}

	ok := types.Succeed("job-a", "/videos/a.mp4", "/out/a.txt", "hello there", 2)
	ok.StartedAt = start
	ok.CompletedAt = start.Add(2 * time.Second)

	bad := types.Fail("job-b", "/videos/b.mp4", &types.JobError{
		Kind:    types.KindTranscription,
		Cause:   types.KindModelNotFound,
		Message: "model missing",
	})
	bad.StartedAt = start
	bad.CompletedAt = start.Add(time.Second)

	for _, o := range []types.JobOutcome{ok, bad} {
		if err := db.SaveOutcome(batchID, o); err != nil {
			t.Fatalf("SaveOutcome(%s): %v", o.JobID, err)
		}
	}

	got, err := db.GetOutcome("job-b")
	if err != nil {
		t.Fatalf("GetOutcome: %v", err)
	}
	if got.Status != types.StatusFailed || got.Kind != "TranscriptionError" || got.Cause != "ModelNotFound" {
		t.Errorf("failed record = %+v", got)
	}
	if got.BatchID != batchID {
		t.Errorf("batch id = %q, want %q", got.BatchID, batchID)
	}
	if !got.CompletedAt.Equal(bad.CompletedAt) {
		t.Errorf("completed_at = %v, want %v", got.CompletedAt, bad.CompletedAt)
	}

	list, err := db.ListOutcomes(10)
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListOutcomes returned %d records", len(list))
	}
	if list[0].JobID != "job-a" {
		t.Errorf("most recent first: got %s", list[0].JobID)
	}
	if list[0].Status != types.StatusCompleted || list[0].WordCount != 2 || list[0].OutputPath != "/out/a.txt" {
		t.Errorf("success record = %+v", list[0])
	}

	if _, err := db.GetOutcome("nope"); !errors.Is(err, ErrOutcomeNotFound) {
		t.Errorf("GetOutcome(nope) error = %v, want ErrOutcomeNotFound", err)
	}

	report := types.NewBatchReport("/videos")
	report.Discovered = 2
	report.Add(ok)
	report.Add(bad)
	report.Finish()
	if err := db.FinishBatch(batchID, report); err != nil {
		t.Fatalf("FinishBatch: %v", err)
	}
}

func TestMetadataDBConcurrentSaves(t *testing.T) {
	db := openTestDB(t)
	batchID, err := db.StartBatch("/videos", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := types.Succeed(fmt.Sprintf("job-%d", i), fmt.Sprintf("/videos/%d.mp4", i), "", "", 0)
			o.CompletedAt = time.Now()
			if err := db.SaveOutcome(batchID, o); err != nil {
				t.Errorf("SaveOutcome: %v", err)
			}
		}(i)
	}
	wg.Wait()

	list, err := db.ListOutcomes(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 16 {
		t.Errorf("stored %d outcomes, want 16", len(list))
	}
}

// fakeDrive answers every list with no matches and every create with a new id
type fakeDrive struct {
	mu      sync.Mutex
	creates int
	uploads []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodGet {
		fmt.Fprint(w, `{"files": []}`)
		return
	}

	f.mu.Lock()
	f.creates++
	id := f.creates
	if strings.Contains(r.URL.RawQuery, "uploadType") {
		f.uploads = append(f.uploads, string(body))
	}
	f.mu.Unlock()

	fmt.Fprintf(w, `{"id": "file-%d"}`, id)
}

func TestDriveClientUpload(t *testing.T) {
	fake := &fakeDrive{}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	ctx := context.Background()
	srv, err := drive.NewService(ctx, option.WithHTTPClient(ts.Client()), option.WithEndpoint(ts.URL+"/"))
	if err != nil {
		t.Fatalf("drive.NewService: %v", err)
	}

	dc, err := newDriveClientWithService(ctx, srv, "Transcripts")
	if err != nil {
		t.Fatalf("newDriveClientWithService: %v", err)
	}
	if dc.folderID != "file-1" {
		t.Errorf("root folder id = %q", dc.folderID)
	}
	dc.now = func() time.Time { return time.Date(2025, 1, 23, 0, 0, 0, 0, time.UTC) }

	url, err := dc.Upload(ctx, "talk.txt", "hello drive")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	// root + year/month/day folders + the transcript
	if fake.creates != 5 {
		t.Errorf("creates = %d, want 5", fake.creates)
	}
	if url != "https://drive.google.com/file/d/file-5/view" {
		t.Errorf("url = %q", url)
	}
	if len(fake.uploads) != 1 || !strings.Contains(fake.uploads[0], "hello drive") {
		t.Errorf("uploads = %q", fake.uploads)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if _, err := tokenFromFile(path); err == nil {
		t.Fatal("expected error for missing token file")
	}

	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}
	if err := saveToken(path, tok); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := tokenFromFile(path)
	if err != nil {
		t.Fatalf("tokenFromFile: %v", err)
	}
	if got.AccessToken != "access" || got.RefreshToken != "refresh" {
		t.Errorf("token = %+v", got)
	}
}
