// Package files keeps uploaded documents on disk, one directory per upload field
package files

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// MaxNameLength bounds the file name without its extension
const MaxNameLength = 100

// DownloadPrefix is the URL prefix uploads are served under
const DownloadPrefix = "/uploads/"

var (
	ErrNoExtension   = errors.New("Отсутствует расширение файла")
	ErrNotAllowed    = errors.New("расширение файла не допустимо")
	ErrNameTooLong   = fmt.Errorf("Имя файла не должно содержать более %d символов.", MaxNameLength)
	ErrEmptyFilename = errors.New("empty file name")
	ErrFileExists    = errors.New("Такой файл уже существует")
)

// Store is rooted at the upload folder
type Store struct {
	root    string
	allowed []string
	log     *zap.Logger
}

// NewStore creates a store; allowed lists extensions without the dot
func NewStore(root string, allowed []string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{root: root, allowed: allowed, log: log.Named("files")}
}

// Root returns the upload folder
func (s *Store) Root() string {
	return s.root
}

// Allowed lists the accepted extensions
func (s *Store) Allowed() []string {
	return s.allowed
}

// Check validates a client supplied file name: it needs an allowed extension and a short enough name
func (s *Store) Check(filename string) error {
	dot := strings.LastIndex(filename, ".")
	if dot < 0 {
		return ErrNoExtension
	}
	name, ext := filename[:dot], filename[dot+1:]
	found := false
	for _, a := range s.allowed {
		if strings.EqualFold(a, ext) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrNotAllowed, ext)
	}
	if len([]rune(name)) >= MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// SecureFilename reduces a client name to a safe base name. Letters of any script are kept,
// whitespace becomes "_" and everything but '.', '-' and '_' is dropped.
func SecureFilename(filename string) string {
	filename = norm.NFKC.String(filename)
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = path.Base(filename)

	var b strings.Builder
	underscore := false
	for _, r := range filename {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-':
			b.WriteRune(r)
			underscore = false
		case r == '_' || unicode.IsSpace(r):
			if !underscore {
				b.WriteRune('_')
			}
			underscore = true
		}
	}
	return strings.Trim(b.String(), "._")
}

// Path returns the location of a stored file
func (s *Store) Path(upload, filename string) string {
	return filepath.Join(s.root, upload, filepath.Base(filename))
}

// Exists reports whether a stored file is present
func (s *Store) Exists(upload, filename string) bool {
	if filename == "" {
		return false
	}
	info, err := os.Stat(s.Path(upload, filename))
	return err == nil && !info.IsDir()
}

// Open opens a stored file for reading
func (s *Store) Open(upload, filename string) (*os.File, error) {
	return os.Open(s.Path(upload, filename))
}

// Save writes r to upload/filename, creating the directory when missing. An existing file is never
// replaced: upload folders are shared between models, so the name may belong to another row.
// The name is reserved first and the content renamed into it, so readers never see a partial file.
// It returns the sha256 of the content.
func (s *Store) Save(upload, filename string, r io.Reader) (string, error) {
	if filename == "" {
		return "", ErrEmptyFilename
	}
	dir := filepath.Join(s.root, upload)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload folder: %w", err)
	}

	dst := s.Path(upload, filename)
	reserved, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("%w: %s/%s", ErrFileExists, upload, filename)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	_ = reserved.Close()

	sum, err := s.write(dir, dst, r)
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	s.log.Info("file stored", zap.String("upload", upload), zap.String("file", filename))
	return sum, nil
}

func (s *Store) write(dir, dst string, r io.Reader) (string, error) {
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Remove deletes a stored file. A missing file is not an error.
// It reports whether a file was actually removed.
func (s *Store) Remove(upload, filename string) (bool, error) {
	if filename == "" {
		return false, nil
	}
	err := os.Remove(s.Path(upload, filename))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove file: %w", err)
	}
	s.log.Info("file removed", zap.String("upload", upload), zap.String("file", filename))
	return true, nil
}

// Hash returns the hex sha256 of r
func Hash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DownloadURL is the public URL of a stored file
func DownloadURL(upload, filename string) string {
	if filename == "" {
		return ""
	}
	return DownloadPrefix + upload + "/" + url.PathEscape(filename)
}
