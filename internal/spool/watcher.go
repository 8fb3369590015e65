// Package spool watches a directory for dropped audio files and feeds them
// through the same submission path as API requests. Useful for batch
// ingestion without a client.
package spool

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Submitter starts a transcription for a spooled file.
type Submitter interface {
	SubmitFile(ctx context.Context, name, base64Data, mimeType string, size int64) error
}

// Watcher submits audio files dropped into a spool directory.
type Watcher struct {
	dir     string
	submit  Submitter
	log     zerolog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher on dir. The directory must already exist.
func NewWatcher(dir string, submit Submitter, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		dir:     dir,
		submit:  submit,
		log:     log.With().Str("component", "spool").Str("dir", dir).Logger(),
		watcher: fsw,
		done:    make(chan struct{}),
	}, nil
}

// Start processes any backlog already in the directory, then watches for new
// files until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		w.processBacklog(ctx)
		w.log.Info().Msg("spool watcher started")

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if !IsAudioFile(ev.Name) {
					continue
				}
				w.handleFile(ctx, ev.Name)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn().Err(err).Msg("spool watch error")
			}
		}
	}()
}

// Stop closes the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
}

func (w *Watcher) processBacklog(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to read spool backlog")
		return
	}
	for _, e := range entries {
		if e.IsDir() || !IsAudioFile(e.Name()) {
			continue
		}
		w.handleFile(ctx, filepath.Join(w.dir, e.Name()))
	}
}

func (w *Watcher) handleFile(ctx context.Context, path string) {
	if !w.waitForQuiesce(ctx, path) {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to read spooled file")
		return
	}

	name := filepath.Base(path)
	encoded := base64.StdEncoding.EncodeToString(data)

	if err := w.submit.SubmitFile(ctx, name, encoded, MimeForFile(name), int64(len(data))); err != nil {
		w.log.Warn().Err(err).Str("file", name).Msg("spooled submission failed, leaving file in place")
		return
	}

	if err := os.Remove(path); err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to remove spooled file after submit")
	}
	w.log.Info().Str("file", name).Int("bytes", len(data)).Msg("spooled file submitted")
}

// waitForQuiesce waits until the file size is stable across two checks, so a
// file still being copied in is not submitted half-written.
func (w *Watcher) waitForQuiesce(ctx context.Context, path string) bool {
	var lastSize int64 = -1
	for i := 0; i < 20; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize && info.Size() > 0 {
			return true
		}
		lastSize = info.Size()

		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}
	w.log.Warn().Str("path", path).Msg("file never quiesced, skipping")
	return false
}

var audioExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".flac": "audio/flac",
	".webm": "audio/webm",
}

// IsAudioFile reports whether the filename has a recognized audio extension.
func IsAudioFile(name string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// MimeForFile maps a filename to its audio MIME type, defaulting to mpeg.
func MimeForFile(name string) string {
	if mime, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return mime
	}
	return "audio/mpeg"
}
