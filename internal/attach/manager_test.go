package attach

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"annfeed/pkg/annfeed"
)

// minimalPDF builds a one-page PDF with a valid xref table.
func minimalPDF() []byte {
	stream := "BT\n/F1 12 Tf\n72 720 Td\n(Board Meeting) Tj\nET"
	var b strings.Builder
	offsets := make([]int, 6)
	b.WriteString("%PDF-1.4\n")
	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")
	offsets[4] = b.Len()
	b.WriteString("4 0 obj\n<< /Length " + strconv.Itoa(len(stream)) + " >>\nstream\n" + stream + "\nendstream\nendobj\n")
	offsets[5] = b.Len()
	b.WriteString("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")
	xref := b.Len()
	b.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		off := strconv.Itoa(offsets[i])
		b.WriteString(strings.Repeat("0", 10-len(off)) + off + " 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n" + strconv.Itoa(xref) + "\n%%EOF\n")
	return []byte(b.String())
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	blobs   map[string][]byte
	errs    map[string]error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeFetcher) Attachment(ctx context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[id]++
	f.mu.Unlock()
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return f.blobs[id], nil
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{blobs: map[string][]byte{"a/1": minimalPDF()}}
	m := NewManager(f, Options{Dir: dir})

	path, err := m.Download(context.Background(), "a/1")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != filepath.Join(dir, "a_1.pdf") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		t.Fatalf("read downloaded file: %v", err)
	}
	if st := m.State("a/1"); st.Busy != Idle || st.Err != "" {
		t.Errorf("state after success = %+v", st)
	}
}

func TestViewUsesOpener(t *testing.T) {
	var opened string
	f := &fakeFetcher{blobs: map[string][]byte{"v1": []byte("%PDF-1.4 not really")}}
	m := NewManager(f, Options{Open: func(p string) error { opened = p; return nil }})

	path, err := m.View(context.Background(), "v1")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	defer os.Remove(path)
	if opened != path {
		t.Errorf("opened %q, want %q", opened, path)
	}
}

func TestBusyGuard(t *testing.T) {
	f := &fakeFetcher{
		blobs:   map[string][]byte{"x": []byte("blob"), "y": []byte("blob")},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 2),
	}
	m := NewManager(f, Options{Dir: t.TempDir(), Open: func(string) error { return nil }})

	done := make(chan error, 1)
	go func() {
		_, err := m.Download(context.Background(), "x")
		done <- err
	}()
	<-f.entered

	if st := m.State("x"); st.Busy != Downloading {
		t.Errorf("busy = %v, want downloading", st.Busy)
	}
	if _, err := m.View(context.Background(), "x"); !errors.Is(err, ErrBusy) {
		t.Errorf("second request err = %v, want ErrBusy", err)
	}

	// Another record is unaffected.
	other := make(chan error, 1)
	go func() {
		_, err := m.Download(context.Background(), "y")
		other <- err
	}()
	<-f.entered

	close(f.block)
	if err := <-done; err != nil {
		t.Errorf("first download: %v", err)
	}
	if err := <-other; err != nil {
		t.Errorf("other download: %v", err)
	}
	if f.calls["x"] != 1 {
		t.Errorf("fetches for x = %d, want 1", f.calls["x"])
	}
}

func TestErrorsArePerRecord(t *testing.T) {
	f := &fakeFetcher{
		blobs: map[string][]byte{"ok": []byte("blob")},
		errs: map[string]error{
			"gone": &annfeed.StatusError{Code: http.StatusNotFound},
			"down": &annfeed.StatusError{Code: http.StatusServiceUnavailable},
			"slow": context.DeadlineExceeded,
		},
	}
	m := NewManager(f, Options{Dir: t.TempDir()})
	ctx := context.Background()

	m.Download(ctx, "gone")
	m.Download(ctx, "down")
	m.Download(ctx, "slow")
	if _, err := m.Download(ctx, "ok"); err != nil {
		t.Fatalf("Download(ok): %v", err)
	}

	tests := []struct {
		id        string
		msg       string
		retriable bool
	}{
		{"gone", "attachment not found", false},
		{"down", "attachment service unavailable, retry", true},
		{"slow", "attachment service unavailable, retry", true},
		{"ok", "", false},
	}
	for _, tt := range tests {
		st := m.State(tt.id)
		if st.Busy != Idle {
			t.Errorf("%s: busy = %v, want idle", tt.id, st.Busy)
		}
		if st.Err != tt.msg || st.Retriable != tt.retriable {
			t.Errorf("%s: state = %+v, want %q retriable=%v", tt.id, st, tt.msg, tt.retriable)
		}
	}

	// The busy flag was cleared, so a retry goes through.
	delete(f.errs, "down")
	f.blobs["down"] = []byte("blob")
	if _, err := m.Download(ctx, "down"); err != nil {
		t.Errorf("retry: %v", err)
	}
	if st := m.State("down"); st.Err != "" {
		t.Errorf("error not cleared after retry: %+v", st)
	}
}

func TestInspect(t *testing.T) {
	info, err := Inspect(minimalPDF())
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Pages != 1 {
		t.Errorf("Pages = %d, want 1", info.Pages)
	}
	if _, err := Inspect([]byte("not a pdf")); err == nil {
		t.Error("expected error for non-PDF data")
	}
	if _, err := Inspect(nil); err == nil {
		t.Error("expected error for empty data")
	}
}
