package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/clipstash/clipstash/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type fakeStore struct {
	videos    map[uuid.UUID]database.Video
	updated   []database.Video
	updateErr error
}

func (f *fakeStore) CreateUser(params database.CreateUserParams) (database.User, error) {
	return database.User{}, errors.New("not implemented")
}

func (f *fakeStore) GetUserByEmail(email string) (database.User, error) {
	return database.User{}, database.ErrNotFound
}

func (f *fakeStore) CreateVideo(params database.CreateVideoParams) (database.Video, error) {
	return database.Video{}, errors.New("not implemented")
}

func (f *fakeStore) GetVideo(id uuid.UUID) (database.Video, error) {
	video, ok := f.videos[id]
	if !ok {
		return database.Video{}, database.ErrNotFound
	}
	return video, nil
}

func (f *fakeStore) GetVideos(userID uuid.UUID) ([]database.Video, error) { return nil, nil }

func (f *fakeStore) UpdateVideo(video database.Video) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.videos[video.ID] = video
	f.updated = append(f.updated, video)
	return nil
}

func (f *fakeStore) DeleteVideo(id uuid.UUID) error { delete(f.videos, id); return nil }
func (f *fakeStore) Reset() error                   { return nil }
func (f *fakeStore) Close() error                   { return nil }

type fakeMedia struct {
	width      int
	height     int
	probeErr   error
	remuxErr   error
	probeCalls int
	remuxCalls int
}

func (m *fakeMedia) Probe(filePath string) (int, int, error) {
	m.probeCalls++
	if m.probeErr != nil {
		return 0, 0, m.probeErr
	}
	return m.width, m.height, nil
}

func (m *fakeMedia) Remux(filePath string) (string, error) {
	m.remuxCalls++
	if m.remuxErr != nil {
		return "", m.remuxErr
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	outputPath := filePath + ".processed"
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return "", err
	}
	return outputPath, nil
}

type putRecord struct {
	key         string
	contentType string
	body        []byte
}

type fakeObjectStorage struct {
	puts   []putRecord
	putErr error
}

func (f *fakeObjectStorage) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, putRecord{
		key:         *params.Key,
		contentType: *params.ContentType,
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectStorage) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return &s3.DeleteObjectOutput{}, nil
}

type uploadFixture struct {
	cfg     *apiConfig
	store   *fakeStore
	media   *fakeMedia
	storage *fakeObjectStorage
	ownerID uuid.UUID
	videoID uuid.UUID
}

func newUploadFixture(t *testing.T) *uploadFixture {
	t.Helper()

	ownerID := uuid.New()
	videoID := uuid.New()
	store := &fakeStore{videos: map[uuid.UUID]database.Video{
		videoID: {
			ID: videoID,
			CreateVideoParams: database.CreateVideoParams{
				Title:  "test video",
				UserID: ownerID,
			},
		},
	}}
	media := &fakeMedia{width: 1920, height: 1080}
	storage := &fakeObjectStorage{}

	cfg := &apiConfig{
		db:               store,
		tempDir:          t.TempDir(),
		s3Bucket:         "clipstash-test",
		s3Client:         storage,
		cloudFrontDomain: "cdn.clipstash.test",
		media:            media,
		uploadLimit:      maxUploadSize,
	}
	return &uploadFixture{
		cfg:     cfg,
		store:   store,
		media:   media,
		storage: storage,
		ownerID: ownerID,
		videoID: videoID,
	}
}

func multipartVideoBody(t *testing.T, fieldName, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename="upload.mp4"`, fieldName))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("creating multipart part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("writing multipart part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return body, mw.FormDataContentType()
}

func (fx *uploadFixture) do(t *testing.T, callerID, videoID uuid.UUID, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/video_upload/"+videoID.String(), body)
	req.Header.Set("Content-Type", contentType)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("videoID", videoID.String())
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, userIDContextKey, callerID)

	w := httptest.NewRecorder()
	fx.cfg.handlerUploadVideo(w, req.WithContext(ctx))
	return w
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading temp dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("temp files left behind: %v", names)
	}
}

func TestUploadVideoSuccess(t *testing.T) {
	fx := newUploadFixture(t)
	body, contentType := multipartVideoBody(t, "video", "video/mp4", []byte("fake mp4 bytes"))

	w := fx.do(t, fx.ownerID, fx.videoID, body, contentType)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if len(fx.storage.puts) != 1 {
		t.Fatalf("got %d S3 puts, want 1", len(fx.storage.puts))
	}

	put := fx.storage.puts[0]
	if !strings.HasPrefix(put.key, "landscape/") || !strings.HasSuffix(put.key, ".mp4") {
		t.Errorf("object key = %q, want landscape/<name>.mp4", put.key)
	}
	if put.contentType != "video/mp4" {
		t.Errorf("stored content type = %q, want video/mp4", put.contentType)
	}
	if string(put.body) != "fake mp4 bytes" {
		t.Errorf("stored body = %q, want the uploaded bytes", put.body)
	}

	var got database.Video
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	wantURL := "https://cdn.clipstash.test/" + put.key
	if got.VideoURL == nil || *got.VideoURL != wantURL {
		t.Errorf("response URL = %v, want %q", got.VideoURL, wantURL)
	}

	persisted := fx.store.videos[fx.videoID]
	if persisted.VideoURL == nil || *persisted.VideoURL != wantURL {
		t.Errorf("persisted URL = %v, want %q", persisted.VideoURL, wantURL)
	}

	requireEmptyDir(t, fx.cfg.tempDir)
}

func TestUploadVideoPortraitKey(t *testing.T) {
	fx := newUploadFixture(t)
	fx.media.width, fx.media.height = 1080, 1920
	body, contentType := multipartVideoBody(t, "video", "video/mp4", []byte("x"))

	w := fx.do(t, fx.ownerID, fx.videoID, body, contentType)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if key := fx.storage.puts[0].key; !strings.HasPrefix(key, "portrait/") {
		t.Errorf("object key = %q, want portrait/ prefix", key)
	}
}

func TestUploadVideoDistinctKeysPerUpload(t *testing.T) {
	fx := newUploadFixture(t)

	for i := 0; i < 2; i++ {
		body, contentType := multipartVideoBody(t, "video", "video/mp4", []byte("x"))
		if w := fx.do(t, fx.ownerID, fx.videoID, body, contentType); w.Code != http.StatusOK {
			t.Fatalf("upload %d: status = %d", i, w.Code)
		}
	}

	if len(fx.storage.puts) != 2 {
		t.Fatalf("got %d S3 puts, want 2", len(fx.storage.puts))
	}
	if fx.storage.puts[0].key == fx.storage.puts[1].key {
		t.Errorf("both uploads used key %q, want distinct keys", fx.storage.puts[0].key)
	}
	for _, put := range fx.storage.puts {
		if !strings.HasPrefix(put.key, "landscape/") {
			t.Errorf("object key = %q, want landscape/ prefix for both", put.key)
		}
	}
}

func TestUploadVideoRejectsOversizedFile(t *testing.T) {
	fx := newUploadFixture(t)
	fx.cfg.uploadLimit = 1 << 10
	body, contentType := multipartVideoBody(t, "video", "video/mp4", bytes.Repeat([]byte("a"), 2<<10))

	w := fx.do(t, fx.ownerID, fx.videoID, body, contentType)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if fx.media.probeCalls != 0 || fx.media.remuxCalls != 0 {
		t.Error("external tools were invoked for an oversized upload")
	}
	if len(fx.storage.puts) != 0 {
		t.Error("oversized upload reached object storage")
	}
	requireEmptyDir(t, fx.cfg.tempDir)
}

func TestUploadVideoRejectsWrongContentType(t *testing.T) {
	fx := newUploadFixture(t)
	body, contentType := multipartVideoBody(t, "video", "video/webm", []byte("x"))

	w := fx.do(t, fx.ownerID, fx.videoID, body, contentType)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if fx.media.probeCalls != 0 || fx.media.remuxCalls != 0 {
		t.Error("external tools were invoked for a rejected upload")
	}
	if len(fx.storage.puts) != 0 {
		t.Error("rejected upload reached object storage")
	}
	requireEmptyDir(t, fx.cfg.tempDir)
}

func TestUploadVideoRejectsMissingContentType(t *testing.T) {
	fx := newUploadFixture(t)
	body, contentType := multipartVideoBody(t, "video", "", []byte("x"))

	w := fx.do(t, fx.ownerID, fx.videoID, body, contentType)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if fx.media.probeCalls != 0 {
		t.Error("probe invoked for an upload with no declared content type")
	}
}

func TestUploadVideoRejectsMissingFile(t *testing.T) {
	fx := newUploadFixture(t)
	body, contentType := multipartVideoBody(t, "not_video", "video/mp4", []byte("x"))

	w := fx.do(t, fx.ownerID, fx.videoID, body, contentType)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	requireEmptyDir(t, fx.cfg.tempDir)
}

func TestUploadVideoForbiddenForNonOwner(t *testing.T) {
	fx := newUploadFixture(t)
	body, contentType := multipartVideoBody(t, "video", "video/mp4", []byte("x"))

	w := fx.do(t, uuid.New(), fx.videoID, body, contentType)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if fx.media.probeCalls != 0 || len(fx.storage.puts) != 0 {
		t.Error("side effects occurred for a non-owner")
	}
	requireEmptyDir(t, fx.cfg.tempDir)
}

func TestUploadVideoNotFound(t *testing.T) {
	fx := newUploadFixture(t)
	body, contentType := multipartVideoBody(t, "video", "video/mp4", []byte("x"))

	w := fx.do(t, fx.ownerID, uuid.New(), body, contentType)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUploadVideoProbeFailure(t *testing.T) {
	fx := newUploadFixture(t)
	fx.media.probeErr = errors.New("ffprobe reported an error")
	body, contentType := multipartVideoBody(t, "video", "video/mp4", []byte("x"))

	w := fx.do(t, fx.ownerID, fx.videoID, body, contentType)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if fx.media.remuxCalls != 0 {
		t.Error("remux ran after a probe failure")
	}
	if len(fx.storage.puts) != 0 {
		t.Error("upload reached object storage after a probe failure")
	}
	requireEmptyDir(t, fx.cfg.tempDir)
}

func TestUploadVideoRemuxFailure(t *testing.T) {
	fx := newUploadFixture(t)
	fx.media.remuxErr = errors.New("ffmpeg: moov atom not found: exit status 1")
	body, contentType := multipartVideoBody(t, "video", "video/mp4", []byte("x"))

	w := fx.do(t, fx.ownerID, fx.videoID, body, contentType)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if len(fx.storage.puts) != 0 {
		t.Error("upload reached object storage after a remux failure")
	}
	if len(fx.store.updated) != 0 {
		t.Error("video record was updated after a remux failure")
	}
	requireEmptyDir(t, fx.cfg.tempDir)
}

func TestUploadVideoStorageFailure(t *testing.T) {
	fx := newUploadFixture(t)
	fx.storage.putErr = errors.New("s3 unavailable")
	body, contentType := multipartVideoBody(t, "video", "video/mp4", []byte("x"))

	w := fx.do(t, fx.ownerID, fx.videoID, body, contentType)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if len(fx.store.updated) != 0 {
		t.Error("video record was updated after a storage failure")
	}
	requireEmptyDir(t, fx.cfg.tempDir)
}
