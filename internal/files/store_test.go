package files_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/localnerve/reestrsi/internal/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *files.Store {
	t.Helper()
	return files.NewStore(filepath.Join(t.TempDir(), "uploads"), []string{"pdf", "png"}, nil)
}

func TestSecureFilename(t *testing.T) {
	tests := map[string]string{
		"Свидетельство о поверке.pdf": "Свидетельство_о_поверке.pdf",
		"../../etc/passwd":            "passwd",
		`C:\docs\scan 1.PNG`:          "scan_1.PNG",
		"  .hidden.pdf":               "hidden.pdf",
		"a<b>|c?.pdf":                 "abc.pdf",
		"ﬁle.pdf":                     "file.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, files.SecureFilename(in), in)
	}
}

func TestCheck(t *testing.T) {
	s := newStore(t)
	assert.NoError(t, s.Check("scan.PDF"))
	assert.ErrorIs(t, s.Check("scan"), files.ErrNoExtension)
	assert.ErrorIs(t, s.Check("scan.exe"), files.ErrNotAllowed)
	assert.ErrorIs(t, s.Check(strings.Repeat("я", files.MaxNameLength)+".pdf"), files.ErrNameTooLong)
	assert.NoError(t, s.Check(strings.Repeat("я", files.MaxNameLength-1)+".pdf"))
}

func TestSaveAndRemove(t *testing.T) {
	s := newStore(t)

	hash, err := s.Save("certificates", "a.pdf", strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, "ed7002b439e9ac845f22357d822bac1444730fbdb6016d3ec9432297b9ec9f73", hash)
	assert.True(t, s.Exists("certificates", "a.pdf"))

	raw, err := os.ReadFile(filepath.Join(s.Root(), "certificates", "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(raw))

	entries, err := os.ReadDir(filepath.Join(s.Root(), "certificates"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")

	same, err := files.Hash(strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, hash, same)

	removed, err := s.Remove("certificates", "a.pdf")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, s.Exists("certificates", "a.pdf"))

	removed, err = s.Remove("certificates", "a.pdf")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = s.Remove("certificates", "")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSaveKeepsExistingFile(t *testing.T) {
	s := newStore(t)
	_, err := s.Save("certificates", "old.pdf", strings.NewReader("first"))
	require.NoError(t, err)

	_, err = s.Save("certificates", "old.pdf", strings.NewReader("second"))
	assert.ErrorIs(t, err, files.ErrFileExists)
	assert.EqualError(t, err, "Такой файл уже существует: certificates/old.pdf")

	raw, err := os.ReadFile(s.Path("certificates", "old.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(raw))

	entries, err := os.ReadDir(filepath.Join(s.Root(), "certificates"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// other folders are separate namespaces
	_, err = s.Save("passports", "old.pdf", strings.NewReader("second"))
	assert.NoError(t, err)
}

func TestSaveEmptyName(t *testing.T) {
	_, err := newStore(t).Save("certificates", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, files.ErrEmptyFilename)
}

func TestPathStaysInsideUpload(t *testing.T) {
	s := newStore(t)
	assert.Equal(t, filepath.Join(s.Root(), "certificates", "passwd"), s.Path("certificates", "../../passwd"))
}

func TestDownloadURL(t *testing.T) {
	assert.Equal(t, "/uploads/certificates/a.pdf", files.DownloadURL("certificates", "a.pdf"))
	assert.Equal(t, "/uploads/certificates/a%20b.pdf", files.DownloadURL("certificates", "a b.pdf"))
	assert.Empty(t, files.DownloadURL("certificates", ""))
}
