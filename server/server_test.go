package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/videoflix/videoflix/internal"
)

const testSecret = "test-secret"

type stubStore struct {
	videos map[uuid.UUID]*internal.Video
}

func (s *stubStore) CreateTx(ctx context.Context, tx pgx.Tx, v *internal.Video) error {
	s.videos[v.ID] = v
	return nil
}

func (s *stubStore) GetByID(ctx context.Context, id uuid.UUID) (*internal.Video, error) {
	v, ok := s.videos[id]
	if !ok {
		return nil, internal.ErrVideoNotFound
	}
	return v, nil
}

func (s *stubStore) List(ctx context.Context) ([]internal.Video, error) {
	out := []internal.Video{}
	for _, v := range s.videos {
		out = append(out, *v)
	}
	return out, nil
}

func (s *stubStore) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*internal.Video, error) {
	v, ok := s.videos[id]
	if !ok {
		return nil, internal.ErrVideoNotFound
	}
	delete(s.videos, id)
	return v, nil
}

// stubTx satisfies pgx.Tx with just enough behavior to track commit and
// rollback; the store and dispatcher stubs never touch the connection.
type stubTx struct {
	committed  bool
	rolledBack bool
}

func (t *stubTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *stubTx) Commit(ctx context.Context) error {
	if t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

func (t *stubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *stubTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *stubTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *stubTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *stubTx) Conn() *pgx.Conn                                               { return nil }

type stubDB struct {
	tx *stubTx
}

func (d *stubDB) Begin(ctx context.Context) (pgx.Tx, error) {
	d.tx = &stubTx{}
	return d.tx, nil
}

// stubDispatcher records every enqueue together with the transaction it was
// made in, so tests can assert jobs ride the record's own transaction.
type stubDispatcher struct {
	transcodes []string
	cleanups   []string
	removals   []string
	txs        []pgx.Tx
	err        error
}

func (d *stubDispatcher) EnqueueTranscodeTx(ctx context.Context, tx pgx.Tx, sourcePath string) error {
	if d.err != nil {
		return d.err
	}
	d.txs = append(d.txs, tx)
	d.transcodes = append(d.transcodes, sourcePath)
	return nil
}

func (d *stubDispatcher) EnqueueCleanupTx(ctx context.Context, tx pgx.Tx, sourcePath string) error {
	if d.err != nil {
		return d.err
	}
	d.txs = append(d.txs, tx)
	d.cleanups = append(d.cleanups, sourcePath)
	return nil
}

func (d *stubDispatcher) EnqueueRemoveFileTx(ctx context.Context, tx pgx.Tx, path string) error {
	if d.err != nil {
		return d.err
	}
	d.txs = append(d.txs, tx)
	d.removals = append(d.removals, path)
	return nil
}

type serverFixture struct {
	engine     *gin.Engine
	store      *stubStore
	db         *stubDB
	dispatcher *stubDispatcher
	mediaRoot  string
}

func newTestServer(t *testing.T, store *stubStore) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &internal.Config{}
	cfg.Auth.JWTSecret = testSecret
	cfg.Media.Root = t.TempDir()

	db := &stubDB{}
	dispatcher := &stubDispatcher{}
	server := NewServer(cfg, db, store, dispatcher, log)
	return &serverFixture{
		engine:     server.Routes(),
		store:      store,
		db:         db,
		dispatcher: dispatcher,
		mediaRoot:  cfg.Media.Root,
	}
}

func authToken(t *testing.T) string {
	t.Helper()
	token, err := internal.IssueToken(testSecret, "viewer", time.Hour)
	require.NoError(t, err)
	return token
}

func doGet(t *testing.T, engine *gin.Engine, path string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth {
		req.Header.Set("Authorization", "Bearer "+authToken(t))
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func doDelete(t *testing.T, engine *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer "+authToken(t))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

// multipartBody builds a form body; an empty fileField skips the file part.
func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte("fake video bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func doPost(t *testing.T, engine *gin.Engine, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+authToken(t))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

// seedHLSVideo registers a video whose 480p rendition exists on disk.
func seedHLSVideo(t *testing.T, store *stubStore) *internal.Video {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(source, []byte("src"), 0o644))

	outDir := internal.HLSOutputDir(source, "480p")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "index.m3u8"), []byte("#EXTM3U\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "segment_000.ts"), []byte("tsdata"), 0o644))

	v := &internal.Video{
		ID:        uuid.New(),
		Title:     "movie",
		Category:  "Drama",
		VideoPath: source,
		Status:    internal.StatusReady,
	}
	store.videos[v.ID] = v
	return v
}

func TestHLSRequiresAuth(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)
	v := seedHLSVideo(t, store)

	rec := doGet(t, fx.engine, "/api/video/"+v.ID.String()+"/480p/index.m3u8", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHLSRejectsBadToken(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)
	v := seedHLSVideo(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/video/"+v.ID.String()+"/480p/index.m3u8", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	fx.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHLSAcceptsCookieAuth(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)
	v := seedHLSVideo(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/video/"+v.ID.String()+"/480p/index.m3u8", nil)
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: authToken(t)})
	rec := httptest.NewRecorder()
	fx.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlaylistServed(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)
	v := seedHLSVideo(t, store)

	rec := doGet(t, fx.engine, "/api/video/"+v.ID.String()+"/480p/index.m3u8", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	assert.Equal(t, "#EXTM3U\n", rec.Body.String())
}

func TestSegmentServed(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)
	v := seedHLSVideo(t, store)

	rec := doGet(t, fx.engine, "/api/video/"+v.ID.String()+"/480p/segment_000.ts", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/MP2T", rec.Header().Get("Content-Type"))
	assert.Equal(t, "tsdata", rec.Body.String())
}

func TestHLSNotFoundCases(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)
	v := seedHLSVideo(t, store)

	noFile := &internal.Video{ID: uuid.New(), Title: "no file", Category: "Drama"}
	store.videos[noFile.ID] = noFile

	tests := []struct {
		name string
		path string
	}{
		{"invalid resolution, existing video", "/api/video/" + v.ID.String() + "/999p/index.m3u8"},
		{"invalid resolution, unknown video", "/api/video/" + uuid.NewString() + "/999p/index.m3u8"},
		{"unknown video", "/api/video/" + uuid.NewString() + "/480p/index.m3u8"},
		{"malformed video id", "/api/video/not-a-uuid/480p/index.m3u8"},
		{"rendition never transcoded", "/api/video/" + v.ID.String() + "/720p/index.m3u8"},
		{"missing segment", "/api/video/" + v.ID.String() + "/480p/segment_001.ts"},
		{"bad segment digit count", "/api/video/" + v.ID.String() + "/480p/segment_0000.ts"},
		{"bad segment extension", "/api/video/" + v.ID.String() + "/480p/segment_000.mp4"},
		{"video without file", "/api/video/" + noFile.ID.String() + "/480p/index.m3u8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doGet(t, fx.engine, tt.path, true)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.JSONEq(t, `{"detail": "Not found."}`, rec.Body.String())
		})
	}
}

func TestListVideos(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)
	seedHLSVideo(t, store)

	rec := doGet(t, fx.engine, "/api/videos", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "movie")
}

func TestCreateVideoEnqueuesTranscode(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)

	body, ct := multipartBody(t, map[string]string{
		"title":    "My Movie",
		"category": "Action",
	}, "video_file", "My Movie.mp4")
	rec := doPost(t, fx.engine, "/api/videos", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, store.videos, 1)
	var v *internal.Video
	for _, stored := range store.videos {
		v = stored
	}
	assert.Equal(t, "My Movie", v.Title)
	assert.Equal(t, "Action", v.Category)

	// The upload landed under the media root.
	require.NotEmpty(t, v.VideoPath)
	assert.True(t, strings.HasPrefix(v.VideoPath, fx.mediaRoot))
	_, err := os.Stat(v.VideoPath)
	assert.NoError(t, err)

	// Exactly one transcode job, enqueued inside the record's own
	// transaction, which committed.
	require.Equal(t, []string{v.VideoPath}, fx.dispatcher.transcodes)
	require.Len(t, fx.dispatcher.txs, 1)
	assert.Same(t, fx.db.tx, fx.dispatcher.txs[0])
	assert.True(t, fx.db.tx.committed)
}

func TestCreateVideoWithoutFile(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)

	body, ct := multipartBody(t, map[string]string{"title": "Metadata only"}, "", "")
	rec := doPost(t, fx.engine, "/api/videos", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, store.videos, 1)
	assert.Empty(t, fx.dispatcher.transcodes, "no file means no transcode job")
	assert.True(t, fx.db.tx.committed)
}

func TestCreateVideoRejectsUnknownExtension(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)

	body, ct := multipartBody(t, map[string]string{"title": "Not a video"}, "video_file", "notes.txt")
	rec := doPost(t, fx.engine, "/api/videos", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, store.videos)
	assert.Empty(t, fx.dispatcher.transcodes)
	assert.Nil(t, fx.db.tx, "rejected uploads must not open a transaction")
}

func TestCreateVideoRequiresTitle(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)

	body, ct := multipartBody(t, map[string]string{"description": "untitled"}, "", "")
	rec := doPost(t, fx.engine, "/api/videos", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.videos)
}

func TestCreateVideoRejectsUnknownCategory(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)

	body, ct := multipartBody(t, map[string]string{"title": "Movie", "category": "Horror"}, "", "")
	rec := doPost(t, fx.engine, "/api/videos", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.videos)
}

func TestCreateVideoDispatchFailureRollsBack(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)
	fx.dispatcher.err = errors.New("queue unavailable")

	body, ct := multipartBody(t, map[string]string{"title": "My Movie"}, "video_file", "movie.mp4")
	rec := doPost(t, fx.engine, "/api/videos", body, ct)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	require.NotNil(t, fx.db.tx)
	assert.True(t, fx.db.tx.rolledBack)
	assert.False(t, fx.db.tx.committed)
}

func TestDeleteVideoEnqueuesCleanup(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)

	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mp4")
	thumb := filepath.Join(dir, "movie.jpg")
	require.NoError(t, os.WriteFile(source, []byte("src"), 0o644))
	require.NoError(t, os.WriteFile(thumb, []byte("jpg"), 0o644))

	v := &internal.Video{
		ID:            uuid.New(),
		Title:         "movie",
		Category:      "Drama",
		VideoPath:     source,
		ThumbnailPath: thumb,
		Status:        internal.StatusReady,
	}
	store.videos[v.ID] = v

	rec := doDelete(t, fx.engine, "/api/videos/"+v.ID.String())
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Empty(t, store.videos)
	assert.Equal(t, []string{source}, fx.dispatcher.cleanups)
	assert.Equal(t, []string{source, thumb}, fx.dispatcher.removals)

	// All three jobs rode the deletion's transaction.
	require.Len(t, fx.dispatcher.txs, 3)
	for _, tx := range fx.dispatcher.txs {
		assert.Same(t, fx.db.tx, tx)
	}
	assert.True(t, fx.db.tx.committed)
}

func TestDeleteVideoMissingFilesSkipsJobs(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)

	v := &internal.Video{
		ID:        uuid.New(),
		Title:     "movie",
		Category:  "Drama",
		VideoPath: filepath.Join(t.TempDir(), "gone.mp4"),
	}
	store.videos[v.ID] = v

	rec := doDelete(t, fx.engine, "/api/videos/"+v.ID.String())
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Empty(t, store.videos)
	assert.Empty(t, fx.dispatcher.cleanups)
	assert.Empty(t, fx.dispatcher.removals)
}

func TestDeleteVideoUnknown(t *testing.T) {
	store := &stubStore{videos: map[uuid.UUID]*internal.Video{}}
	fx := newTestServer(t, store)

	rec := doDelete(t, fx.engine, "/api/videos/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail": "Not found."}`, rec.Body.String())

	assert.Empty(t, fx.dispatcher.cleanups)
	assert.Empty(t, fx.dispatcher.removals)
}

func TestUploadName(t *testing.T) {
	name := uploadName("My Great Movie!.MP4")
	assert.Regexp(t, `^[0-9a-f-]{36}_my-great-movie\.mp4$`, name)

	name = uploadName("....mkv")
	assert.Regexp(t, `^[0-9a-f-]{36}_video\.mkv$`, name)
}
