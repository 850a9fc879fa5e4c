package blob

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imvqa/domain/core"
	internalconfig "imvqa/internal/config"
	"imvqa/internal/errors"
	"imvqa/ports"
)

func TestFilesystem_PutGet(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ports.BlobDriverFilesystem, store.Driver())
	ctx := context.Background()

	info, err := store.Put(ctx, "exports/plate.xlsx", strings.NewReader("workbook"), ports.PutOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{"feature": "Intensity"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size)
	assert.Len(t, info.ETag, 64)
	assert.True(t, strings.HasPrefix(info.URL, "file://"))

	got, rc, err := store.Get(ctx, "exports/plate.xlsx")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "workbook", string(body))
	assert.Equal(t, "Intensity", got.Metadata["feature"])
	assert.Equal(t, info.ETag, got.ETag)

	_, err = store.Put(ctx, "exports/plate.xlsx", strings.NewReader("again"), ports.PutOptions{})
	assert.Error(t, err, "keys are create-only")
}

func TestFilesystem_RejectsBadKeys(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "  ", "../escape", "/abs/path"} {
		_, err := store.Put(context.Background(), key, strings.NewReader("x"), ports.PutOptions{})
		assert.Error(t, err, key)
	}
}

// fakeS3 is a minimal in-memory S3 endpoint for Head/Put/Get on one bucket
type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	forbidPut bool
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	empty := func(status int) *http.Response {
		return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}
	}
	switch req.Method {
	case http.MethodHead:
		body, ok := f.objects[key]
		if !ok {
			return empty(http.StatusNotFound), nil
		}
		resp := empty(http.StatusOK)
		resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
		return resp, nil
	case http.MethodPut:
		if f.forbidPut {
			return empty(http.StatusForbidden), nil
		}
		body, _ := io.ReadAll(req.Body)
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			body = decodeChunked(body)
		}
		f.objects[key] = body
		f.types[key] = req.Header.Get("Content-Type")
		resp := empty(http.StatusOK)
		resp.Header.Set("ETag", `"etag-1"`)
		return resp, nil
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return empty(http.StatusNotFound), nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
			"Content-Type":   {f.types[key]},
			"ETag":           {`"etag-1"`},
		}}, nil
	}
	return empty(http.StatusNotImplemented), nil
}

// decodeChunked strips aws-chunked framing: "<hex size>[;ext]\r\n<data>\r\n" until a zero chunk
func decodeChunked(raw []byte) []byte {
	var out bytes.Buffer
	r := bufio.NewReader(bytes.NewReader(raw))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return raw
		}
		line = strings.TrimSpace(line)
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		n, err := strconv.ParseInt(line, 16, 64)
		if err != nil {
			return raw
		}
		if n == 0 {
			return out.Bytes()
		}
		if _, err := io.CopyN(&out, r, n); err != nil {
			return raw
		}
		if _, err := r.ReadString('\n'); err != nil {
			return raw
		}
	}
}

func newFakeS3Store(t *testing.T) (*S3, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := awsS3.NewFromConfig(cfg, func(o *awsS3.Options) {
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
	})
	return &S3{client: client, bucket: "plates"}, fake
}

func TestS3_PutGet(t *testing.T) {
	store, fake := newFakeS3Store(t)
	assert.Equal(t, ports.BlobDriverS3, store.Driver())
	ctx := context.Background()

	// a non-seekable reader is buffered before upload
	info, err := store.Put(ctx, "exports/report.html", io.MultiReader(strings.NewReader("<h1>"), strings.NewReader("QA</h1>")),
		ports.PutOptions{ContentType: "text/html"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size)
	assert.Equal(t, "s3://plates/exports/report.html", info.URL)
	assert.Equal(t, "<h1>QA</h1>", string(fake.objects["exports/report.html"]))

	got, rc, err := store.Get(ctx, "exports/report.html")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "<h1>QA</h1>", string(body))
	assert.Equal(t, "text/html", got.ContentType)

	_, err = store.Put(ctx, "exports/report.html", strings.NewReader("again"), ports.PutOptions{})
	assert.Error(t, err, "keys are create-only")
}

func TestS3_FailuresAreExternalServiceErrors(t *testing.T) {
	store, fake := newFakeS3Store(t)
	fake.forbidPut = true
	ctx := context.Background()

	_, err := store.Put(ctx, "exports/plate.xlsx", strings.NewReader("workbook"), ports.PutOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeExternalService, errors.GetCode(err))

	_, _, err = store.Get(ctx, "exports/missing.xlsx")
	require.Error(t, err)
	assert.Equal(t, errors.CodeExternalService, errors.GetCode(err))
}

func TestFilesystem_GetMissingIsNotFound(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Get(context.Background(), "exports/missing.xlsx")
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestOpen(t *testing.T) {
	store, err := Open(context.Background(), internalconfig.BlobConfig{Driver: "fs", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, ports.BlobDriverFilesystem, store.Driver())

	_, err = Open(context.Background(), internalconfig.BlobConfig{Driver: "gcs"})
	assert.Error(t, err)

	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	store, err = Open(context.Background(), internalconfig.BlobConfig{
		Driver: "s3", S3Bucket: "plates", S3Endpoint: "http://localhost:9000", S3PathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, ports.BlobDriverS3, store.Driver())
}
