package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anime-shed/image-editor-go/internal/storage"
	"github.com/anime-shed/image-editor-go/pkg/models"
)

var fastRetry = storage.RetryPolicy{Attempts: 3, Backoff: 5 * time.Millisecond}

func newStoreWithSources(t *testing.T, n int) (*storage.LocalStore, []Item) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("item-%d", i)
		ref, err := store.Put(context.Background(), "originals/"+id+".png", []byte("source-"+id), "image/png")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		items = append(items, Item{ID: id, SourceRef: ref})
	}
	return store, items
}

func collect(ch <-chan ItemResult) map[string]ItemResult {
	out := make(map[string]ItemResult)
	for r := range ch {
		out[r.ItemID] = r
	}
	return out
}

func TestHTTPItemClient_ProcessesEveryItem(t *testing.T) {
	store, items := newStoreWithSources(t, 5)

	var mu sync.Mutex
	var seenOps []models.OperationKind
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ProcessPath || r.Method != http.MethodPost {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body processRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Invalid body: %v", err)
		}
		mu.Lock()
		seenOps = append(seenOps, body.Operation)
		mu.Unlock()

		source, _ := base64.StdEncoding.DecodeString(body.Image)
		// item-3 fails permanently
		if bytes.HasSuffix(source, []byte("item-3")) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(append([]byte("processed-"), source...))
	}))
	defer server.Close()

	client := NewHTTPItemClient(Options{BaseURL: server.URL + "/", Timeout: time.Second, Concurrency: 2}, store)
	client.SetRetryPolicy(fastRetry)

	ch, err := client.Process(context.Background(), Request{
		JobID:     "job-1",
		Operation: models.Operation{Kind: models.OpRemoveBackground, Params: map[string]any{}},
		Items:     items,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	results := collect(ch)

	if len(results) != len(items) {
		t.Fatalf("Expected %d results, got %d", len(items), len(results))
	}
	for _, item := range items {
		r := results[item.ID]
		if item.ID == "item-3" {
			if r.Err == nil || !strings.Contains(r.Err.Error(), "status code 422") {
				t.Errorf("Expected item-3 to fail with 422, got %+v", r)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("Item %s: unexpected error %v", item.ID, r.Err)
			continue
		}
		if r.ResultRef != "processed/job-1/"+item.ID+".png" {
			t.Errorf("Item %s: unexpected ref %s", item.ID, r.ResultRef)
		}
		data, err := store.Get(context.Background(), r.ResultRef)
		if err != nil || string(data) != "processed-source-"+item.ID {
			t.Errorf("Item %s: unexpected stored result %q (%v)", item.ID, data, err)
		}
	}
	for _, op := range seenOps {
		if op != models.OpRemoveBackground {
			t.Errorf("Expected remove_bg, got %s", op)
		}
	}
}

func TestHTTPItemClient_RetriesServerErrors(t *testing.T) {
	store, items := newStoreWithSources(t, 1)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewHTTPItemClient(Options{BaseURL: server.URL, Timeout: time.Second, Concurrency: 1}, store)
	client.SetRetryPolicy(fastRetry)

	ch, _ := client.Process(context.Background(), Request{JobID: "j", Operation: models.Operation{Kind: models.OpEnhance}, Items: items})
	results := collect(ch)

	if results["item-0"].Err != nil {
		t.Errorf("Expected success after retries, got %v", results["item-0"].Err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestHTTPItemClient_CanceledContextFailsItems(t *testing.T) {
	store, items := newStoreWithSources(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewHTTPItemClient(Options{BaseURL: "http://127.0.0.1:1", Concurrency: 2}, store)
	ch, _ := client.Process(ctx, Request{JobID: "j", Items: items})
	results := collect(ch)

	if len(results) != 3 {
		t.Fatalf("Expected every item to report, got %d", len(results))
	}
	for id, r := range results {
		if r.Err == nil {
			t.Errorf("Expected %s to fail on a canceled context", id)
		}
	}
}

func TestHTTPBatchClient_StreamsResults(t *testing.T) {
	store, items := newStoreWithSources(t, 3)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != BatchPath {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var body batchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Invalid body: %v", err)
		}
		if len(body.Items) != 3 || body.Operation != models.OpUpscale || body.Params["scale"] != float64(2) {
			t.Errorf("Unexpected batch body: %+v", body)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		enc.Encode(batchResultLine{ID: "item-1", Error: "model crashed"})
		enc.Encode(batchResultLine{ID: "item-0", Image: base64.StdEncoding.EncodeToString([]byte("big-0")), ContentType: "image/png"})
		enc.Encode(batchResultLine{ID: "item-2", Image: base64.StdEncoding.EncodeToString([]byte("big-2")), ContentType: "image/png"})
	}))
	defer server.Close()

	client := NewHTTPBatchClient(Options{BaseURL: server.URL}, store)
	client.SetRetryPolicy(fastRetry)

	ch, err := client.Process(context.Background(), Request{
		JobID:     "job-2",
		Operation: models.Operation{Kind: models.OpUpscale, Params: map[string]any{"scale": 2}},
		Items:     items,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	results := collect(ch)

	if r := results["item-1"]; r.Err == nil || r.Err.Error() != "model crashed" {
		t.Errorf("Expected item-1 backend error, got %+v", r)
	}
	for _, id := range []string{"item-0", "item-2"} {
		r := results[id]
		if r.Err != nil {
			t.Errorf("Item %s: unexpected error %v", id, r.Err)
			continue
		}
		data, _ := store.Get(context.Background(), r.ResultRef)
		if string(data) != "big-"+strings.TrimPrefix(id, "item-") {
			t.Errorf("Item %s: unexpected stored result %q", id, data)
		}
	}
}

func TestHTTPBatchClient_MalformedLineAbortsStream(t *testing.T) {
	store, items := newStoreWithSources(t, 3)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "{\"id\":\"item-0\",\"image\":%q}\n", base64.StdEncoding.EncodeToString([]byte("x")))
		fmt.Fprintln(w, "not json")
		fmt.Fprintf(w, "{\"id\":\"item-2\",\"image\":%q}\n", base64.StdEncoding.EncodeToString([]byte("y")))
	}))
	defer server.Close()

	client := NewHTTPBatchClient(Options{BaseURL: server.URL}, store)
	ch, err := client.Process(context.Background(), Request{JobID: "j", Operation: models.Operation{Kind: models.OpEnhance}, Items: items})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	results := collect(ch)

	if len(results) != 1 {
		t.Fatalf("Expected only the line before the malformed one, got %v", results)
	}
	if results["item-0"].Err != nil {
		t.Errorf("Unexpected error: %v", results["item-0"].Err)
	}
}

func TestHTTPBatchClient_ClientErrorFailsDispatch(t *testing.T) {
	store, items := newStoreWithSources(t, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPBatchClient(Options{BaseURL: server.URL}, store)
	client.SetRetryPolicy(fastRetry)

	if _, err := client.Process(context.Background(), Request{JobID: "j", Items: items}); err == nil {
		t.Error("Expected dispatch error for a 400 answer")
	}
}

func TestNewLimiter(t *testing.T) {
	if l := newLimiter(0); !l.Allow() || !l.Allow() {
		t.Error("Expected unlimited limiter when rate is zero")
	}
	l := newLimiter(1)
	if !l.Allow() {
		t.Error("Expected first call to pass")
	}
	if l.Allow() {
		t.Error("Expected second immediate call to be throttled")
	}
}

func TestHTTPBatchClient_StalledStreamIsCut(t *testing.T) {
	store, items := newStoreWithSources(t, 3)

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		json.NewEncoder(w).Encode(batchResultLine{ID: "item-0", Image: base64.StdEncoding.EncodeToString([]byte("done"))})
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewHTTPBatchClient(Options{BaseURL: server.URL, Timeout: 100 * time.Millisecond}, store)
	ch, err := client.Process(context.Background(), Request{JobID: "j", Operation: models.Operation{Kind: models.OpEnhance}, Items: items})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	done := make(chan map[string]ItemResult)
	go func() { done <- collect(ch) }()

	select {
	case results := <-done:
		if r, ok := results["item-0"]; !ok || r.Err != nil {
			t.Errorf("Expected item-0 to complete before the stall, got %+v", r)
		}
		if len(results) != 1 {
			t.Errorf("Expected only item-0 to report, got %d results", len(results))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the stalled stream to be closed")
	}
}
