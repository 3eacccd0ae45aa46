package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"spendwise/internal/core"
)

// maxUploadMemory is how much of a multipart form is buffered in memory
// before spilling to temporary files.
const maxUploadMemory = 8 << 20

// upload is a file taken from a request, either a multipart part or the raw body.
type upload struct {
	io.ReadCloser
	Filename string
}

// multipartOverhead is the slack allowed for boundaries and part headers
// on top of the file limit.
const multipartOverhead = 64 << 10

// uploadedFile returns the first multipart part named by one of fields.
// Non-multipart requests are read as the raw file body. Files larger than
// limit fail with *http.MaxBytesError.
func uploadedFile(w http.ResponseWriter, r *http.Request, limit int64, fields ...string) (upload, error) {
	tooLarge := &http.MaxBytesError{Limit: limit}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
			return upload{}, core.Validation("request body is empty")
		}
		if r.ContentLength > limit {
			return upload{}, tooLarge
		}
		return upload{ReadCloser: http.MaxBytesReader(w, r.Body, limit)}, nil
	}

	if r.ContentLength > limit+multipartOverhead {
		return upload{}, tooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return upload{}, tooLarge
		}
		return upload{}, core.Validationf("invalid multipart form: %v", err)
	}
	for _, field := range fields {
		f, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return upload{}, core.Validationf("read %s: %v", field, err)
		}
		if header.Size > limit {
			_ = f.Close()
			return upload{}, tooLarge
		}
		return upload{ReadCloser: f, Filename: header.Filename}, nil
	}
	return upload{}, core.Validationf("multipart field %q is required", fields[0])
}

// attachment sets the download headers for a generated file.
func attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}

// reportFilename names a report download, e.g. spending-2024-01-01_2024-01-31.csv.
func reportFilename(start, end core.Date, ext string) string {
	return fmt.Sprintf("spending-%s_%s.%s", start, end, strings.TrimPrefix(ext, "."))
}
