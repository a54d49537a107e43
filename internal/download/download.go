// Package download fetches YouTube audio through the yt-dlp binary.
package download

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// progressPrefix marks machine-readable progress lines on stdout. The
// prefix keeps them apart from the metadata JSON line.
const progressPrefix = "dl:"

// ProgressFunc receives byte counts while a download runs.
type ProgressFunc func(downloaded, total int64)

// Output describes one downloaded audio file. The folder holds only this
// download and is deleted once the transcript is stored.
type Output struct {
	FileID          string
	URL             string
	AudioFilePath   string
	AudioFolderPath string
	Title           string
	VideoID         string
	Duration        float64
	Uploader        string
}

// Downloader shells out to yt-dlp to extract mp3 audio from video URLs.
type Downloader struct {
	binPath string
	tempDir string
	log     zerolog.Logger
}

// New creates a Downloader using the yt-dlp binary at binPath (a bare name
// resolves through PATH) and tempDir for per-download folders.
func New(binPath, tempDir string, log zerolog.Logger) *Downloader {
	return &Downloader{binPath: binPath, tempDir: tempDir, log: log}
}

// CheckBinary verifies the yt-dlp binary is present and runnable.
func (d *Downloader) CheckBinary(ctx context.Context) error {
	path, err := exec.LookPath(d.binPath)
	if err != nil {
		return fmt.Errorf("yt-dlp not found: %w", err)
	}
	output, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("yt-dlp verification failed: %w", err)
	}
	d.log.Debug().Str("version", strings.TrimSpace(string(output))).Msg("yt-dlp available")
	return nil
}

// DownloadAudio extracts the audio track of rawURL as mp3 into a fresh
// folder under the temp dir. progress may be nil.
func (d *Downloader) DownloadAudio(ctx context.Context, rawURL string, progress ProgressFunc) (*Output, error) {
	fileID := uuid.New().String()[:12]
	folder := filepath.Join(d.tempDir, fileID)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download folder: %w", err)
	}

	args := []string{
		"--no-playlist",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "192K",
		"--output", filepath.Join(folder, fileID+".%(ext)s"),
		"--print-json",
		"--newline",
		"--progress-template", progressPrefix + "%(progress.downloaded_bytes)s/%(progress.total_bytes,progress.total_bytes_estimate)s",
		rawURL,
	}

	d.log.Debug().Str("url", rawURL).Str("folder", folder).Msg("starting download")

	cmd := exec.CommandContext(ctx, d.binPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	var infoLine string
	scanner := bufio.NewScanner(stdout)
	// Metadata JSON lines for long videos run well past the default limit.
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, progressPrefix):
			if progress != nil {
				if downloaded, total, ok := parseProgress(line); ok {
					progress(downloaded, total)
				}
			}
		case strings.HasPrefix(line, "{"):
			infoLine = line
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, tail(stderr.String(), 500))
	}
	if scanErr != nil {
		return nil, fmt.Errorf("failed to read yt-dlp output: %w", scanErr)
	}
	if infoLine == "" {
		return nil, fmt.Errorf("yt-dlp produced no video metadata")
	}

	var info struct {
		Title    string  `json:"title"`
		ID       string  `json:"id"`
		Duration float64 `json:"duration"`
		Uploader string  `json:"uploader"`
	}
	if err := json.Unmarshal([]byte(infoLine), &info); err != nil {
		return nil, fmt.Errorf("failed to decode video metadata: %w", err)
	}

	audioPath, err := findAudioFile(folder, fileID)
	if err != nil {
		return nil, err
	}

	return &Output{
		FileID:          fileID,
		URL:             rawURL,
		AudioFilePath:   audioPath,
		AudioFolderPath: folder,
		Title:           info.Title,
		VideoID:         info.ID,
		Duration:        info.Duration,
		Uploader:        info.Uploader,
	}, nil
}

// IsYouTubeURL reports whether raw looks like a YouTube video URL.
func IsYouTubeURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	switch host {
	case "youtube.com", "www.youtube.com", "youtu.be", "m.youtube.com":
		return true
	}
	return strings.Contains(host, "youtube")
}

// parseProgress decodes a "dl:<downloaded>/<total>" line. yt-dlp prints NA
// for unknown totals; those lines report !ok.
func parseProgress(line string) (downloaded, total int64, ok bool) {
	parts := strings.SplitN(strings.TrimPrefix(line, progressPrefix), "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	df, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	tf, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || tf <= 0 {
		return 0, 0, false
	}
	return int64(df), int64(tf), true
}

// findAudioFile locates the downloaded file inside folder. The file name
// carries the download id; the extension depends on the post-processor.
func findAudioFile(folder, fileID string) (string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", fmt.Errorf("failed to read download folder: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), fileID) {
			continue
		}
		return filepath.Join(folder, entry.Name()), nil
	}
	return "", fmt.Errorf("no audio file for %s in %s", fileID, folder)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
