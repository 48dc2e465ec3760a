package upload

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nilay/reportgen/internal/core"
	"github.com/nilay/reportgen/internal/model"
)

type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	return m.scanFunc(dest...)
}

// buildForm assembles a real multipart form so the headers are openable.
func buildForm(t *testing.T, files map[string]string) []*multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("documents", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	return form.File["documents"]
}

func newTestSaver(t *testing.T, db *mockDB, maxBytes int64) (*Saver, string) {
	dir := t.TempDir()
	return NewSaver(core.NewFileService(db), dir, maxBytes, zerolog.Nop()), dir
}

func TestValidate(t *testing.T) {
	s, _ := newTestSaver(t, new(mockDB), 100)

	var verr *ValidationError

	err := s.Validate(nil)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "no files")

	err = s.Validate(buildForm(t, map[string]string{"report.exe": "x"}))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "unsupported extension")

	err = s.Validate(buildForm(t, map[string]string{
		"main.csv": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"ref.csv":  "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "exceeds limit")

	assert.NoError(t, s.Validate(buildForm(t, map[string]string{"main.csv": "a,b\n"})))
	assert.NoError(t, s.Validate(buildForm(t, map[string]string{"Main.CSV": "a,b\n"})))
}

func TestSaveBatch(t *testing.T) {
	db := new(mockDB)
	s, dir := newTestSaver(t, db, 1<<20)

	var nextID int64
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			nextID++
			*dest[0].(*int64) = nextID
			return nil
		}})

	records, err := s.SaveBatch(context.Background(), buildForm(t, map[string]string{
		"main.csv": "a,b\n1,2\n",
		"ref.csv":  "c,d\n3,4\n",
	}))
	require.NoError(t, err)
	require.Len(t, records, 2)

	for _, rec := range records {
		assert.NotZero(t, rec.ID)
		assert.Equal(t, model.FileCategoryInput, rec.Category)
		assert.Contains(t, rec.ContentType, "text/csv")
		data, err := os.ReadFile(rec.Path)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSaveBatchInvalidSiblingRejectsAll(t *testing.T) {
	db := new(mockDB)
	s, dir := newTestSaver(t, db, 1<<20)

	_, err := s.SaveBatch(context.Background(), buildForm(t, map[string]string{
		"main.csv":   "a,b\n",
		"virus.exe":  "mz",
		"backup.csv": "c,d\n",
	}))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
	db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveBatchRecordFailureDiscardsFiles(t *testing.T) {
	db := new(mockDB)
	s, dir := newTestSaver(t, db, 1<<20)

	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			return errors.New("connection refused")
		}})

	_, err := s.SaveBatch(context.Background(), buildForm(t, map[string]string{"main.csv": "a,b\n"}))
	require.Error(t, err)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}
