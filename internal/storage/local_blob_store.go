// Package storage keeps response attachments on local disk.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// sniffLen is how much of the upload mimetype inspects.
const sniffLen = 3072

// ErrTooLarge is returned when an upload exceeds the configured cap.
var ErrTooLarge = errors.New("attachment too large")

// BlobStore persists attachment bytes and returns where they can be fetched.
type BlobStore interface {
	Store(ctx context.Context, r io.Reader, originalName string) (domain.Attachment, error)
	// Remove deletes a blob returned by Store. Unknown blobs are not an error.
	Remove(ctx context.Context, attachment domain.Attachment) error
}

// LocalBlobStore writes blobs under dir and serves them below baseURL.
type LocalBlobStore struct {
	dir      string
	baseURL  string
	maxBytes int64
	logger   *zap.Logger
}

// NewLocalBlobStore creates dir if needed.
func NewLocalBlobStore(dir, baseURL string, maxBytes int64, logger *zap.Logger) (*LocalBlobStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalBlobStore{
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		logger:   logger.Named("blobs"),
	}, nil
}

// Dir returns the directory blobs are written to.
func (s *LocalBlobStore) Dir() string {
	return s.dir
}

// Store sniffs the content type, names the blob with a fresh uuid and writes it.
// Partial files are removed on failure.
func (s *LocalBlobStore) Store(ctx context.Context, r io.Reader, originalName string) (domain.Attachment, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return domain.Attachment{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return domain.Attachment{}, apperrors.NewValidationError("attachment is empty", map[string]any{"file": originalName})
	}

	mime := mimetype.Detect(head)
	ext := mime.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(originalName))
	}
	name := uuid.NewString() + ext
	full := filepath.Join(s.dir, name)

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("create blob: %w", err)
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	if s.maxBytes > 0 {
		body = io.LimitReader(body, s.maxBytes+1)
	}
	written, err := io.Copy(f, &ctxReader{ctx: ctx, r: body})
	closeErr := f.Close()
	switch {
	case err != nil:
	case closeErr != nil:
		err = closeErr
	case s.maxBytes > 0 && written > s.maxBytes:
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, ErrTooLarge) {
			return domain.Attachment{}, apperrors.NewValidationError("attachment too large", map[string]any{"maxBytes": s.maxBytes})
		}
		return domain.Attachment{}, apperrors.MapError(err)
	}

	s.logger.Debug("blob stored", zap.String("name", name), zap.String("mime", mime.String()), zap.Int64("bytes", written))
	return domain.Attachment{
		URL:      s.baseURL + "/" + name,
		MimeType: mime.String(),
	}, nil
}

// Remove deletes the file behind attachment.
func (s *LocalBlobStore) Remove(_ context.Context, attachment domain.Attachment) error {
	name, ok := strings.CutPrefix(attachment.URL, s.baseURL+"/")
	if !ok || name == "" || name != filepath.Base(name) {
		return apperrors.NewValidationError("attachment is not stored here", map[string]any{"url": attachment.URL})
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	s.logger.Debug("blob removed", zap.String("name", name))
	return nil
}

// ctxReader stops a long copy once the request is gone.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
