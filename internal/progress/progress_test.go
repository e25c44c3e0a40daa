package progress

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/cloudsdk/cloudxfer/internal/cloud"
)

func TestDownloadBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewDownloadBar(&buf, "a.txt", 11)

	n, err := io.Copy(bar, strings.NewReader("hello world"))
	if err != nil || n != 11 {
		t.Fatalf("copy = %d, %v", n, err)
	}
	bar.Done(nil)
	if !strings.Contains(buf.String(), "a.txt") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	failed := NewDownloadBar(&buf, "b.txt", 4)
	failed.Done(io.ErrUnexpectedEOF)
	if !strings.Contains(buf.String(), "Error: unexpected EOF") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	tr := Discard()
	n, err := tr.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Errorf("Write = %d, %v", n, err)
	}
	tr.Done(nil)
}

func TestTextUploadUI(t *testing.T) {
	var buf bytes.Buffer
	ui := NewTextUploadUI(2, &buf)
	if ui.IsTerminal() {
		t.Fatal("text UI reports a terminal")
	}

	ok := ui.AddFileBar("/data/in/a.txt", "Cache", 3)
	ok.Report(cloud.ProgressInfo{FileName: "a.txt", BytesSent: 1, TotalBytes: 3})
	ok.Report(cloud.ProgressInfo{FileName: "a.txt", BytesSent: 3, TotalBytes: 3, Success: true, Done: true})

	bad := ui.AddFileBar("b.txt", "Cache", 5)
	bad.Report(cloud.ProgressInfo{FileName: "b.txt", BytesSent: 0, TotalBytes: 1, Error: "connection refused", Done: true})
	ui.Wait()

	out := buf.String()
	for _, want := range []string{
		"Uploading [1/2]: …/in/a.txt",
		"Uploading [2/2]: b.txt",
		"✓ …/in/a.txt → Cache",
		"✗ b.txt → Cache: connection refused",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	completed, failed := ui.Counts()
	if completed != 1 || failed != 1 {
		t.Errorf("Counts() = %d, %d", completed, failed)
	}
}

func TestTextUploadUI_ConcurrentUploads(t *testing.T) {
	const n = 32
	var buf bytes.Buffer
	ui := NewTextUploadUI(n, &buf)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("file-%02d.bin", i)
			bar := ui.AddFileBar(name, "Cache", 8)
			bar.Report(cloud.ProgressInfo{FileName: name, BytesSent: 8, TotalBytes: 8, Success: true, Done: true})
		}(i)
	}
	wg.Wait()
	ui.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2*n {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), 2*n, buf.String())
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "Uploading [") && !strings.HasPrefix(line, "✓ file-") {
			t.Errorf("interleaved line %q", line)
		}
	}
	if completed, _ := ui.Counts(); completed != n {
		t.Errorf("completed = %d, want %d", completed, n)
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path string
		n    int
		want string
	}{
		{"file.txt", 2, "file.txt"},
		{"dir/file.txt", 2, "file.txt"},
		{"/a/b/c/d/file.txt", 3, "…/c/d/file.txt"},
	}
	for _, tt := range tests {
		if got := truncatePath(tt.path, tt.n); got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.n, got, tt.want)
		}
	}
}
