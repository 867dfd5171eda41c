package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxUploadSize caps multipart uploads at 10 MB.
const maxUploadSize = 10 << 20

// ObjectStore is the backend contract the handlers depend on.
type ObjectStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// UploadHandler accepts a multipart upload ("file" part, optional "key"
// form value) and stores it. Without a key the object gets a generated one.
func UploadHandler(store ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			http.Error(w, "file too large or malformed upload", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file part", http.StatusBadRequest)
			return
		}
		defer file.Close()

		key := r.FormValue("key")
		if key == "" {
			key = uuid.New().String() + path.Ext(header.Filename)
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		if err := store.Upload(r.Context(), key, file, header.Size, contentType); err != nil {
			http.Error(w, "upload failed", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"key": key})
	}
}

// DownloadHandler hands the object back. The default is a redirect to a
// short-lived presigned URL; with ?stream=1 the bytes are proxied through
// the service instead, for clients that cannot reach the storage endpoint.
func DownloadHandler(store ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if key == "" {
			http.Error(w, "missing key", http.StatusBadRequest)
			return
		}

		if r.URL.Query().Get("stream") == "1" {
			obj, err := store.Download(r.Context(), key)
			if err != nil {
				http.Error(w, "object not available", http.StatusNotFound)
				return
			}
			defer obj.Close()
			w.Header().Set("Content-Type", "application/octet-stream")
			io.Copy(w, obj)
			return
		}

		presigned, err := store.PresignedURL(r.Context(), key, 15*time.Minute)
		if err != nil {
			http.Error(w, "object not available", http.StatusNotFound)
			return
		}
		http.Redirect(w, r, presigned, http.StatusTemporaryRedirect)
	}
}
