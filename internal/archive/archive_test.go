package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/olcbioinformatics/sippr-launcher/internal/config"
	httpx "github.com/olcbioinformatics/sippr-launcher/internal/http"
)

type fakePutter struct {
	failures []error
	calls    int
	bodies   []string
	last     *s3.PutObjectInput
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.bodies = append(f.bodies, string(data))
	f.last = in
	if f.calls <= len(f.failures) {
		return nil, f.failures[f.calls-1]
	}
	return &s3.PutObjectOutput{}, nil
}

type fakeBlobs struct {
	failures    []error
	calls       int
	container   string
	name        string
	contentType string
}

func (f *fakeBlobs) UploadFile(ctx context.Context, container, name string, file *os.File, o *azblob.UploadFileOptions) (azblob.UploadFileResponse, error) {
	f.calls++
	f.container = container
	f.name = name
	if o != nil && o.HTTPHeaders != nil && o.HTTPHeaders.BlobContentType != nil {
		f.contentType = *o.HTTPHeaders.BlobContentType
	}
	if f.calls <= len(f.failures) {
		return azblob.UploadFileResponse{}, f.failures[f.calls-1]
	}
	return azblob.UploadFileResponse{}, nil
}

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run1_gar_2024-03-01.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.3 report"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func fast(cfg httpx.Config) httpx.Config {
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"gar/", "/out/run_gar.pdf", "gar/run_gar.pdf"},
		{"gar", "/out/run_gar.pdf", "gar/run_gar.pdf"},
		{"", "/out/run_gar.pdf", "run_gar.pdf"},
		{"/lab/reports/", "run_gar.pdf", "lab/reports/run_gar.pdf"},
	}
	for _, tt := range tests {
		if got := objectKey(tt.prefix, tt.path); got != tt.want {
			t.Errorf("objectKey(%q, %q) = %q, want %q", tt.prefix, tt.path, got, tt.want)
		}
	}
}

func TestS3Upload(t *testing.T) {
	path := writeReport(t)
	putter := &fakePutter{failures: []error{errors.New("503 service unavailable")}}
	u := newS3Uploader(putter, "lab-reports", "gar/", nil)
	u.retry = fast(u.retry)

	loc, err := u.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if loc != "s3://lab-reports/gar/run1_gar_2024-03-01.pdf" {
		t.Errorf("location = %q", loc)
	}
	if putter.calls != 2 {
		t.Errorf("PutObject calls = %d, want 2", putter.calls)
	}
	for i, body := range putter.bodies {
		if body != "%PDF-1.3 report" {
			t.Errorf("attempt %d sent body %q; file not rewound", i+1, body)
		}
	}
	if got := aws.ToString(putter.last.ContentType); got != "application/pdf" {
		t.Errorf("ContentType = %q, want application/pdf", got)
	}
	if got := aws.ToInt64(putter.last.ContentLength); got != int64(len("%PDF-1.3 report")) {
		t.Errorf("ContentLength = %d", got)
	}
}

func TestS3UploadFatal(t *testing.T) {
	putter := &fakePutter{failures: []error{errors.New("NoSuchBucket: 404")}}
	u := newS3Uploader(putter, "missing", "", nil)

	_, err := u.Upload(context.Background(), writeReport(t))
	if err == nil {
		t.Fatal("expected error for missing bucket")
	}
	if putter.calls != 1 {
		t.Errorf("fatal error retried: %d calls", putter.calls)
	}
}

func TestS3UploadMissingFile(t *testing.T) {
	putter := &fakePutter{}
	u := newS3Uploader(putter, "lab-reports", "", nil)

	if _, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.pdf")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if putter.calls != 0 {
		t.Errorf("PutObject called %d times for a missing file", putter.calls)
	}
}

func TestAzureUpload(t *testing.T) {
	blobs := &fakeBlobs{failures: []error{errors.New("connection reset by peer")}}
	u := newAzureUploader(blobs, "https://lab.blob.core.windows.net/", "reports", "gar", nil)
	u.retry = fast(u.retry)

	loc, err := u.Upload(context.Background(), writeReport(t))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if want := "https://lab.blob.core.windows.net/reports/gar/run1_gar_2024-03-01.pdf"; loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}
	if blobs.calls != 2 || blobs.container != "reports" || blobs.name != "gar/run1_gar_2024-03-01.pdf" {
		t.Errorf("unexpected upload: calls=%d container=%q name=%q", blobs.calls, blobs.container, blobs.name)
	}
	if blobs.contentType != "application/pdf" {
		t.Errorf("content type = %q", blobs.contentType)
	}
}

func TestNewProvider(t *testing.T) {
	u, err := New(context.Background(), config.ArchiveConfig{Provider: config.ArchiveNone}, nil)
	if err != nil || u != nil {
		t.Errorf("New(none) = %v, %v; want nil, nil", u, err)
	}

	_, err = New(context.Background(), config.ArchiveConfig{Provider: "ftp"}, nil)
	if !errors.Is(err, config.ErrInvalidArchiveProvider) {
		t.Errorf("New(ftp) error = %v, want ErrInvalidArchiveProvider", err)
	}
	if err != nil && !strings.Contains(err.Error(), "ftp") {
		t.Errorf("error does not name the provider: %v", err)
	}
}
