package blobstore_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"manuscript-ingest/config"
	"manuscript-ingest/constant"
	"manuscript-ingest/pkg/blobstore"
)

func TestNewSelectsDriver(t *testing.T) {
	ctx := context.Background()

	store, err := blobstore.New(ctx, config.Storage{
		Driver:   constant.StorageDriverMinIO,
		Bucket:   "podcast-files",
		Endpoint: "localhost:9000",
	})
	require.NoError(t, err)
	assert.NotNil(t, store)

	store, err = blobstore.New(ctx, config.Storage{
		Driver:    constant.StorageDriverS3,
		Bucket:    "podcast-files",
		Region:    "eu-west-1",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := blobstore.New(context.Background(), config.Storage{Driver: "ftp", Bucket: "b"})
	assert.Error(t, err)
}

func notFoundServer(t *testing.T, seen *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = append(*seen, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		if r.Method != http.MethodHead {
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMinIOGetMissingKey(t *testing.T) {
	var seen []string
	srv := notFoundServer(t, &seen)

	store, err := blobstore.NewMinIO(config.Storage{
		Bucket:    "podcast-files",
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Region:    "us-east-1",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "book/1_sample.mp3")
	assert.ErrorIs(t, err, blobstore.ErrObjectNotFound)
	assert.Contains(t, seen, "HEAD /podcast-files/book/1_sample.mp3")
}

func TestS3GetMissingKey(t *testing.T) {
	var seen []string
	srv := notFoundServer(t, &seen)

	store, err := blobstore.NewS3(context.Background(), config.Storage{
		Bucket:    "podcast-files",
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		AccessKey: "key",
		SecretKey: "secret",
		PathStyle: true,
	})
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "book/1_sample.mp3")
	assert.ErrorIs(t, err, blobstore.ErrObjectNotFound)
	assert.Contains(t, seen, "GET /podcast-files/book/1_sample.mp3")
}
