package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxUploadSize is the largest file the backend accepts.
const MaxUploadSize = 10 << 20

var (
	ErrFileTooLarge    = errors.New("file exceeds upload limit")
	ErrUnsupportedFile = errors.New("file type not allowed")
)

var (
	imageTypes = map[string]bool{"image/jpeg": true, "image/png": true, "image/gif": true}
	fileTypes  = map[string]bool{"image/jpeg": true, "image/png": true, "image/gif": true, "application/pdf": true}
)

// UploadAPI covers /api/upload using the long-timeout HTTP client.
type UploadAPI struct {
	c *Client
}

// Upload is the backend description of a stored file.
type Upload struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimetype"`
}

// Image uploads an image under the "image" form field.
func (u *UploadAPI) Image(ctx context.Context, name string, r io.Reader) (Upload, error) {
	return u.upload(ctx, "/api/upload/image", "image", name, r, imageTypes)
}

// File uploads an image or PDF under the "file" form field.
func (u *UploadAPI) File(ctx context.Context, name string, r io.Reader) (Upload, error) {
	return u.upload(ctx, "/api/upload/file", "file", name, r, fileTypes)
}

func (u *UploadAPI) upload(ctx context.Context, path, field, name string, r io.Reader, allowed map[string]bool) (Upload, error) {
	content, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return Upload{}, fmt.Errorf("read %s: %w", name, err)
	}
	if len(content) > MaxUploadSize {
		return Upload{}, fmt.Errorf("%w: %s", ErrFileTooLarge, name)
	}
	if mime := sniff(content); !allowed[mime] {
		return Upload{}, fmt.Errorf("%w: %s is %s", ErrUnsupportedFile, name, mime)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile(field, filepath.Base(name))
	if err != nil {
		return Upload{}, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return Upload{}, fmt.Errorf("build upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return Upload{}, fmt.Errorf("build upload form: %w", err)
	}

	req, err := u.c.newRequest(ctx, http.MethodPost, path, nil, &body)
	if err != nil {
		return Upload{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var resp struct {
		File Upload `json:"file"`
	}
	if err := u.c.send(u.c.upload, req, &resp); err != nil {
		return Upload{}, err
	}
	return resp.File, nil
}

func sniff(content []byte) string {
	mime, _, _ := strings.Cut(http.DetectContentType(content), ";")
	return mime
}
