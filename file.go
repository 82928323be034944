package sketricgen

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSizeBytes is the largest file the upload endpoints accept.
const MaxFileSizeBytes = 20 * 1024 * 1024

// allowedContentTypes is the set of MIME types the backend accepts for
// uploaded assets.
var allowedContentTypes = []string{
	"image/jpeg",
	"image/webp",
	"image/png",
	"application/pdf",
	"image/gif",
}

func init() {
	// The stdlib extension table varies by platform; register the
	// extensions we classify so detection is deterministic.
	for ext, contentType := range map[string]string{
		".webp": "image/webp",
		".gif":  "image/gif",
		".pdf":  "application/pdf",
		".mp4":  "video/mp4",
		".mov":  "video/quicktime",
		".heic": "image/heic",
	} {
		_ = mime.AddExtensionType(ext, contentType)
	}
}

// detectContentType maps a file name to a MIME type by its extension.
// Returns "" when the extension is unknown.
func detectContentType(fileName string) string {
	contentType := mime.TypeByExtension(filepath.Ext(fileName))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return contentType
}

// validateContentType checks a detected or overridden MIME type against
// the allow-list.
func validateContentType(contentType string) error {
	if contentType == "" {
		return &ValidationError{Message: "unable to determine content type from file"}
	}

	for _, allowed := range allowedContentTypes {
		if contentType == allowed {
			return nil
		}
	}

	return &ContentTypeError{ContentType: contentType, Allowed: allowedContentTypes}
}

// FileOptions customizes how an upload source is resolved.
type FileOptions struct {
	// FileName overrides the resolved name. Required for byte sources,
	// and for readers that carry no name of their own.
	FileName string

	// ContentType overrides extension-based detection.
	ContentType string
}

// FileDescriptor is the resolved, pre-upload form of a file: a readable
// handle plus the size, name and content type the upload protocol needs.
type FileDescriptor struct {
	FileName    string
	ContentType string
	Size        int64

	reader io.Reader
	closer io.Closer // set only when the descriptor opened the handle itself
}

// Close releases the descriptor's handle if the descriptor owns it.
// Handles supplied by the caller are never closed here. Close is
// idempotent.
func (fd *FileDescriptor) Close() error {
	if fd.closer == nil {
		return nil
	}
	closer := fd.closer
	fd.closer = nil
	return closer.Close()
}

// resolveFileFromPath opens the file at path. The descriptor owns the
// handle and closes it when the upload finishes.
func resolveFileFromPath(path string, options *FileOptions) (*FileDescriptor, error) {
	if options == nil {
		options = &FileOptions{}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	fileName := options.FileName
	if fileName == "" {
		fileName = filepath.Base(path)
	}

	fd := &FileDescriptor{
		FileName: fileName,
		Size:     info.Size(),
		reader:   f,
		closer:   f,
	}

	return finishResolve(fd, options)
}

// resolveFileFromBytes wraps an in-memory buffer. A file name must be
// given since none can be inferred.
func resolveFileFromBytes(data []byte, options *FileOptions) (*FileDescriptor, error) {
	if options == nil {
		options = &FileOptions{}
	}

	if options.FileName == "" {
		return nil, &ValidationError{Message: "file name is required when uploading from bytes"}
	}

	fd := &FileDescriptor{
		FileName: options.FileName,
		Size:     int64(len(data)),
		reader:   bytes.NewReader(data),
	}

	return finishResolve(fd, options)
}

// resolveFileFromReader wraps an already-open handle. The size is found
// by seeking to the end and restoring the original position; ownership
// stays with the caller, so the descriptor never closes the handle.
func resolveFileFromReader(rs io.ReadSeeker, options *FileOptions) (*FileDescriptor, error) {
	if options == nil {
		options = &FileOptions{}
	}

	current, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to determine stream position: %w", err)
	}
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to determine stream size: %w", err)
	}
	if _, err := rs.Seek(current, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to restore stream position: %w", err)
	}

	fileName := options.FileName
	if fileName == "" {
		if named, ok := rs.(interface{ Name() string }); ok {
			fileName = filepath.Base(named.Name())
		}
	}
	if fileName == "" {
		return nil, &ValidationError{Message: "file name is required when uploading from a reader"}
	}

	fd := &FileDescriptor{
		FileName: fileName,
		Size:     size,
		reader:   rs,
	}

	return finishResolve(fd, options)
}

// finishResolve enforces the size limits and the content-type allow-list,
// releasing any owned handle before reporting failure.
func finishResolve(fd *FileDescriptor, options *FileOptions) (*FileDescriptor, error) {
	if fd.Size == 0 {
		fd.Close()
		return nil, &ValidationError{Message: "cannot upload empty file"}
	}
	if fd.Size > MaxFileSizeBytes {
		fd.Close()
		return nil, &FileSizeError{Size: fd.Size, Limit: MaxFileSizeBytes}
	}

	contentType := options.ContentType
	if contentType == "" {
		contentType = detectContentType(fd.FileName)
	}
	if err := validateContentType(contentType); err != nil {
		fd.Close()
		return nil, err
	}
	fd.ContentType = contentType

	return fd, nil
}
