package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/download"
	"github.com/mvp-joe/mcp-brag/internal/metrics"
	"github.com/mvp-joe/mcp-brag/internal/progress"
	"github.com/mvp-joe/mcp-brag/internal/queue"
	"github.com/mvp-joe/mcp-brag/internal/readers"
	"github.com/mvp-joe/mcp-brag/internal/store"
)

// downloadWorker pulls URLs off the queue and turns them into audio files
// queued for transcription.
type downloadWorker struct {
	ctx        context.Context
	in         *queue.Queue[string]
	out        *queue.Queue[TranscriptionTask]
	downloader *download.Downloader
	progress   *progress.Manager
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

func (w *downloadWorker) step() bool {
	url, ok := w.in.GetOne()
	if !ok {
		return false
	}
	w.process(url)
	return true
}

func (w *downloadWorker) process(url string) {
	if !download.IsYouTubeURL(url) {
		w.log.Error().Str("url", url).Msg("invalid YouTube URL ignored")
		return
	}

	w.progress.AddPhase(url, progress.PhaseDownloading, true)
	w.progress.SetPhaseTotal(url, progress.PhaseDownloading, 1)

	w.log.Debug().Str("url", url).Msg("downloading audio")
	out, err := w.downloader.DownloadAudio(w.ctx, url, func(downloaded, total int64) {
		w.progress.SetPhaseProgress(url, progress.PhaseDownloading, int(downloaded))
		w.progress.SetPhaseTotal(url, progress.PhaseDownloading, int(total))
	})
	if err != nil {
		w.metrics.DownloadFailures.Inc()
		w.log.Error().Err(err).Str("url", url).Msg("failed to download audio")
		w.progress.MarkFailed(url)
		return
	}
	w.metrics.Downloads.Inc()

	task := TranscriptionTask{
		ID:              out.FileID,
		AudioPath:       out.AudioFilePath,
		AudioFolderPath: out.AudioFolderPath,
		Source:          url,
		SourceType:      readers.SourceYouTubeTranscription,
		TaskID:          uuid.New().String(),
		CreatedAt:       time.Now(),
		Meta: store.Meta{
			Title:      out.Title,
			VideoID:    out.VideoID,
			Duration:   out.Duration,
			Uploader:   out.Uploader,
			TempFolder: out.AudioFolderPath,
		},
		DeleteAudioFolder: true,
	}
	if err := w.out.PutMany([]TranscriptionTask{task}); err != nil {
		w.log.Error().Err(err).Str("url", url).Msg("failed to queue audio for transcription")
		w.progress.MarkFailed(url)
		return
	}
	w.log.Debug().Str("url", url).Msg("queued audio for transcription")
}
