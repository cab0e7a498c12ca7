package service

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"io"
	"manuscript-ingest/dto"
	"mime"
	"path"
	"strings"
	"sync"
	"time"
	"unicode"
)

const sniffLen = 3072

// keyClock hands out strictly increasing nanosecond stamps so two uploads in
// the same process never share a storage key.
type keyClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (c *keyClock) next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.now().UnixNano()
	if n <= c.last {
		n = c.last + 1
	}
	c.last = n
	return n
}

func storageKey(bookId uuid.UUID, stamp int64, filename string) string {
	return fmt.Sprintf("%s/%d_%s", bookId, stamp, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "audio"
	}
	return name
}

// validateAudio enforces the size ceiling and the audio media type. When the
// declared type is missing or generic the first bytes are sniffed, and the
// body is rewound so the upload still sees the full stream.
func validateAudio(file *dto.UploadFile, maxBytes int64) error {
	if strings.TrimSpace(file.Filename) == "" {
		return errors.Join(ErrValidation, errors.New("filename is required"))
	}
	if file.Size <= 0 {
		return errors.Join(ErrValidation, errors.New("file is empty"))
	}
	if file.Size > maxBytes {
		return errors.Join(ErrValidation, fmt.Errorf("file too large: %d bytes exceeds the %d byte limit", file.Size, maxBytes))
	}

	mediaType := ""
	if file.ContentType != "" {
		mt, _, err := mime.ParseMediaType(file.ContentType)
		if err != nil {
			return errors.Join(ErrValidation, fmt.Errorf("invalid content type %q: %w", file.ContentType, err))
		}
		mediaType = mt
	}

	if mediaType == "" || mediaType == "application/octet-stream" {
		if file.Body == nil {
			return errors.Join(ErrValidation, errors.New("file body is missing"))
		}
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(file.Body, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return errors.Join(ErrValidation, fmt.Errorf("read file: %w", err))
		}
		head = head[:n]
		file.Body = io.MultiReader(bytes.NewReader(head), file.Body)
		mediaType, _, _ = mime.ParseMediaType(mimetype.Detect(head).String())
		file.ContentType = mediaType
	}

	if !strings.HasPrefix(mediaType, "audio/") {
		return errors.Join(ErrValidation, fmt.Errorf("unsupported media type %q: an audio file is required", mediaType))
	}
	return nil
}
