package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// mediaProcessor abstracts the external media tooling so handlers can be
// tested without ffmpeg installed.
type mediaProcessor interface {
	// Probe returns the width and height of the first video stream.
	Probe(filePath string) (width, height int, err error)
	// Remux rewrites the container for fast-start playback and returns the
	// path of the new file.
	Remux(filePath string) (string, error)
}

// ffmpegProcessor shells out to ffprobe and ffmpeg.
type ffmpegProcessor struct{}

var _ mediaProcessor = ffmpegProcessor{}

type ffprobeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

func (ffmpegProcessor) Probe(filePath string) (int, int, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		filePath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w", err)
	}
	// ffprobe runs at error verbosity, so anything on stderr means the file
	// has a problem even when the exit code is zero.
	if stderr.Len() > 0 {
		return 0, 0, errors.New("ffprobe reported an error")
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &probed); err != nil {
		return 0, 0, fmt.Errorf("couldn't parse ffprobe output: %w", err)
	}
	if len(probed.Streams) == 0 {
		return 0, 0, errors.New("no video stream found")
	}
	return probed.Streams[0].Width, probed.Streams[0].Height, nil
}

func (ffmpegProcessor) Remux(filePath string) (string, error) {
	outputPath := filePath + ".processed"

	cmd := exec.Command("ffmpeg",
		"-i", filePath,
		"-movflags", "faststart",
		"-map_metadata", "0",
		"-codec", "copy",
		"-f", "mp4",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// ffmpeg may have created a partial output before dying.
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg: %s: %w", stderr.String(), err)
	}
	return outputPath, nil
}

// classificationForDimensions buckets a video stream into a storage-key prefix.
// The comparison is deliberately coarse: the truncated integer ratio is matched
// against truncated 16/9 (1) and truncated 9/16 (0), so for example any square
// video lands in "landscape".
func classificationForDimensions(width, height int) string {
	if height == 0 || width == 0 {
		return "other"
	}
	switch width / height {
	case 16 / 9:
		return "landscape"
	case 9 / 16:
		return "portrait"
	default:
		return "other"
	}
}
