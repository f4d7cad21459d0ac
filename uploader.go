package lordn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const (
	uploadField        = "file"
	uploadFilename     = "claims.csv"
	uploadContentType  = "text/csv; charset=utf-8"
	responseBodyAbsent = "(null)"
)

// Uploader submits an assembled report to MarksDB and returns the
// acknowledgment locator taken from the Location header.
type Uploader interface {
	Upload(ctx context.Context, tag, path string, report []byte) (string, error)
}

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UploadError describes a response MarksDB answered with but that did not
// accept the report.
type UploadError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

// Error implements error.
func (e *UploadError) Error() string {
	return fmt.Sprintf("lordn: upload to %s: status %d: %v", e.URL, e.StatusCode, e.Err)
}

// Unwrap returns ErrUploadRejected or ErrMissingLocation.
func (e *UploadError) Unwrap() error {
	return e.Err
}

// HTTPUploader posts reports as a single-part multipart/form-data request.
// It never retries: a failed upload aborts the run and the leased records
// reappear once their lease expires.
type HTTPUploader struct {
	endpoint string
	cfg      UploaderConfig
}

// NewUploader constructs an uploader for the MarksDB base URL.
func NewUploader(endpoint string, opts ...UploaderOption) (*HTTPUploader, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEndpointInvalid, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrEndpointInvalid, endpoint)
	}

	var cfg UploaderConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &HTTPUploader{
		endpoint: strings.TrimRight(endpoint, "/"),
		cfg:      cfg.withDefaults(),
	}, nil
}

// URL returns the destination of an upload to path.
func (u *HTTPUploader) URL(path string) string {
	return u.endpoint + path
}

// Upload implements Uploader.
func (u *HTTPUploader) Upload(ctx context.Context, tag, path string, report []byte) (string, error) {
	if tag == "" {
		return "", ErrTagRequired
	}

	target := u.URL(path)
	body, contentType, err := u.encode(report)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEndpointInvalid, err)
	}
	req.Header.Set("Content-Type", contentType)
	if u.cfg.Initializer != nil {
		if err := u.cfg.Initializer.Initialize(req, tag); err != nil {
			return "", err
		}
	}

	logger := loggerFor(ctx, u.cfg.Logger)
	logger.Info("lordn upload sending", "url", target, "bytes", len(report))
	start := time.Now()
	resp, err := u.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: error connecting to MarksDB at URL %s: %w", ErrUploadTransport, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, u.cfg.ResponseLimit))
	if err != nil {
		return "", fmt.Errorf("%w: read MarksDB response from %s: %w", ErrUploadTransport, target, err)
	}
	logged := string(raw)
	if logged == "" {
		logged = responseBodyAbsent
	}
	logger.Info("lordn upload response",
		"url", target,
		"status", resp.StatusCode,
		"body", logged,
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusAccepted {
		return "", &UploadError{URL: target, StatusCode: resp.StatusCode, Body: string(raw), Err: ErrUploadRejected}
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", &UploadError{URL: target, StatusCode: resp.StatusCode, Body: string(raw), Err: ErrMissingLocation}
	}

	return location, nil
}

// encode wraps report in a multipart body whose boundary never occurs inside it.
func (u *HTTPUploader) encode(report []byte) ([]byte, string, error) {
	for attempt := 0; attempt < u.cfg.BoundaryAttempts; attempt++ {
		boundary := u.cfg.Boundary()
		if boundary == "" || bytes.Contains(report, []byte(boundary)) {
			continue
		}

		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		if err := writer.SetBoundary(boundary); err != nil {
			continue
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, uploadFilename))
		header.Set("Content-Type", uploadContentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("lordn: encode report: %w", err)
		}
		if _, err := part.Write(report); err != nil {
			return nil, "", fmt.Errorf("lordn: encode report: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, "", fmt.Errorf("lordn: encode report: %w", err)
		}

		return buf.Bytes(), writer.FormDataContentType(), nil
	}

	return nil, "", ErrBoundaryCollision
}

// IsUploadStatus reports whether err is an UploadError with the given status.
func IsUploadStatus(err error, status int) bool {
	var uploadErr *UploadError

	return errors.As(err, &uploadErr) && uploadErr.StatusCode == status
}
