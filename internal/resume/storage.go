// Package resume stores uploaded resume files on local disk and serves them
// back to staff.
package resume

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	dErrors "leadtriage/pkg/domain-errors"
	"leadtriage/pkg/platform/sentinel"
)

// URLPrefix is the path resumes are served under.
const URLPrefix = "/resumes/"

// DefaultMaxBytes caps uploads when no limit is configured.
const DefaultMaxBytes int64 = 5 << 20

var allowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

// Stored names are a UUID plus the detected extension.
var storedName = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.[a-z0-9]{1,5}$`)

// Storage writes resumes into a directory under generated names.
type Storage struct {
	dir      string
	maxBytes int64
}

// NewStorage creates dir if needed.
func NewStorage(dir string, maxBytes int64) (*Storage, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create resume dir: %w", err)
	}
	return &Storage{dir: dir, maxBytes: maxBytes}, nil
}

// MaxBytes is the largest accepted upload.
func (s *Storage) MaxBytes() int64 {
	return s.maxBytes
}

// Save checks size and content type, writes the file and returns the URL it
// is served from. The client file name is never used on disk.
func (s *Storage) Save(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read resume")
	}
	if int64(len(data)) > s.maxBytes {
		return "", dErrors.New(dErrors.CodePayloadTooLarge, "Resume must be at most "+humanSize(s.maxBytes))
	}
	if len(data) == 0 {
		return "", dErrors.Validation("Invalid lead submission", map[string]string{"resume": "Resume is required"})
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return "", dErrors.New(dErrors.CodeUnsupportedMediaType, "Resume must be a PDF, DOC, DOCX or TXT file")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + mtype.Extension()
	if err := s.writeAtomic(name, data); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store resume")
	}
	return URLPrefix + name, nil
}

func (s *Storage) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}

// File is an opened resume.
type File struct {
	*os.File
	Name        string
	ContentType string
}

// Open returns a stored resume by name. Names that were not produced by Save
// are reported as not found.
func (s *Storage) Open(name string) (*File, error) {
	if !storedName.MatchString(name) {
		return nil, sentinel.ErrNotFound
	}
	path := filepath.Join(s.dir, name)
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("detect resume type: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("open resume: %w", err)
	}
	return &File{File: f, Name: name, ContentType: mtype.String()}, nil
}

// Discard removes a resume previously returned by Save. Unknown URLs are
// ignored.
func (s *Storage) Discard(url string) error {
	name, ok := strings.CutPrefix(url, URLPrefix)
	if !ok || !storedName.MatchString(name) {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove resume: %w", err)
	}
	return nil
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
