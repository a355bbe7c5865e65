package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/clipstash/clipstash/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxUploadSize = 1 << 30 // 1 GiB

// Slack above the file ceiling so multipart framing doesn't reject a file
// that is exactly at the limit; the file itself is checked against the
// ceiling after parsing.
const maxFormOverhead = 1 << 20

// handlerUploadVideo runs the upload pipeline: stage the multipart file to a
// temp path, probe its aspect ratio, remux it for fast-start playback, publish
// the result to S3 and persist the CloudFront URL on the video record. Any
// failure aborts the rest of the pipeline; temp files are removed on every
// exit path.
func (cfg *apiConfig) handlerUploadVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, cfg.uploadLimit+maxFormOverhead)

	videoID, err := uuid.Parse(chi.URLParam(r, "videoID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid video ID", err)
		return
	}

	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "Couldn't find userID in context", nil)
		return
	}

	log.Println("uploading video", videoID, "by user", userID)

	video, err := cfg.db.GetVideo(videoID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Couldn't find video", err)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Couldn't get video", err)
		return
	}
	if video.UserID != userID {
		respondWithError(w, http.StatusForbidden, "You don't own this video", nil)
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Couldn't parse the video file", err)
		return
	}
	defer file.Close()

	if header.Size > cfg.uploadLimit {
		respondWithError(w, http.StatusBadRequest, "Video exceeds the maximum upload size", nil)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		respondWithError(w, http.StatusBadRequest, "Missing Content-Type for video", nil)
		return
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid Content-Type header", err)
		return
	}
	if mediaType != "video/mp4" {
		respondWithError(w, http.StatusBadRequest, "Upload must be an mp4 video", nil)
		return
	}

	fileName, err := randomAssetName(mediaType)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't generate file name", err)
		return
	}

	stagedPath := filepath.Join(cfg.tempDir, fileName)
	stagedFile, err := os.Create(stagedPath)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't create temp file", err)
		return
	}
	defer os.Remove(stagedPath)
	defer stagedFile.Close()

	if _, err := io.Copy(stagedFile, file); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Error saving video to temp file", err)
		return
	}

	width, height, err := cfg.media.Probe(stagedPath)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't get video aspect ratio", err)
		return
	}
	classification := classificationForDimensions(width, height)

	processedPath, err := cfg.media.Remux(stagedPath)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't process video for fast start", err)
		return
	}
	defer os.Remove(processedPath)

	processedFile, err := os.Open(processedPath)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't open processed video", err)
		return
	}
	defer processedFile.Close()

	fileKey := fmt.Sprintf("%s/%s", classification, fileName)
	_, err = cfg.s3Client.PutObject(r.Context(), &s3.PutObjectInput{
		Bucket:      aws.String(cfg.s3Bucket),
		Key:         aws.String(fileKey),
		Body:        processedFile,
		ContentType: aws.String(mediaType),
	})
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't upload video to S3", err)
		return
	}

	videoURL := fmt.Sprintf("https://%s/%s", cfg.cloudFrontDomain, fileKey)
	video.VideoURL = &videoURL
	if err := cfg.db.UpdateVideo(video); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't update video", err)
		return
	}

	respondWithJSON(w, http.StatusOK, video)
}
