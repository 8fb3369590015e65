// Package transcribe orchestrates the single-job transcription lifecycle:
// resolve the audio input, submit a prediction, persist the session, and
// drive the client-side polling loop until a terminal status.
package transcribe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-gateway/internal/audioinput"
	"github.com/snarg/scribe-gateway/internal/metrics"
	"github.com/snarg/scribe-gateway/internal/predict"
	"github.com/snarg/scribe-gateway/internal/session"
)

// StatusPublisher pushes session transitions to interested consumers.
type StatusPublisher interface {
	PublishStatus(s *session.Session)
}

// BlobCleaner removes an uploaded payload once its session is gone.
type BlobCleaner interface {
	Delete(ctx context.Context, path string) error
}

// StartRequest is one user-initiated transcription.
type StartRequest struct {
	AudioURL  string
	AudioData string
	MimeType  string
	Filename  string
	Size      int64
	Options   session.Options
	BatchSize int // 0 uses the configured default
}

// Options configures the orchestrator.
type Options struct {
	Store        session.Store
	Predict      *predict.Client
	Classifier   *audioinput.Classifier
	Cleaner      BlobCleaner     // optional
	Events       StatusPublisher // optional
	ModelRef     string
	BatchSize    int
	PollInterval time.Duration
	Log          zerolog.Logger
}

// Orchestrator owns every in-flight poll loop. Polling is client-driven on a
// fixed interval; the prediction service offers no push channel.
type Orchestrator struct {
	store      session.Store
	predict    *predict.Client
	classifier *audioinput.Classifier
	cleaner    BlobCleaner
	events     StatusPublisher
	opts       Options
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pollers map[string]context.CancelFunc
}

// maxConsecutivePollFailures bounds how many poll errors in a row are
// tolerated before the session is marked failed.
const maxConsecutivePollFailures = 3

// New creates an orchestrator. Call Stop to drain poll loops on shutdown.
func New(opts Options) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:      opts.Store,
		predict:    opts.Predict,
		classifier: opts.Classifier,
		cleaner:    opts.Cleaner,
		events:     opts.Events,
		opts:       opts,
		log:        opts.Log.With().Str("component", "orchestrator").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		pollers:    make(map[string]context.CancelFunc),
	}
}

// Start runs the submission path: classify audio, supersede any prior active
// session, create the new one, submit with retry, and enter the poll loop.
// On submit failure the session is persisted as failed and returned along
// with the error so callers can still show it.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*session.Session, error) {
	resolved, err := o.classifier.Resolve(ctx, audioinput.Input{
		AudioURL:  req.AudioURL,
		AudioData: req.AudioData,
		MimeType:  req.MimeType,
	})
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if resolved.Uploaded {
		metrics.UploadsTotal.Inc()
	}

	o.supersedeActive(ctx)

	src := session.AudioSource{
		Type:       "file",
		Name:       req.Filename,
		Size:       req.Size,
		UploadPath: resolved.UploadPath,
	}
	if req.AudioURL != "" {
		src.Type = "url"
		src.URL = req.AudioURL
	} else if resolved.Uploaded {
		src.URL = resolved.Audio
	}

	sess, err := o.store.Create(ctx, req.Options, src)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		// No session records the upload path, so the object would be
		// unreachable forever.
		if resolved.Uploaded && o.cleaner != nil {
			if cerr := o.cleaner.Delete(ctx, resolved.UploadPath); cerr != nil {
				o.log.Warn().Err(cerr).
					Str("path", resolved.UploadPath).
					Msg("failed to delete uploaded payload after create failure")
			}
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	metrics.ActiveSessions.Inc()
	o.publish(sess)

	batch := req.BatchSize
	if batch <= 0 {
		batch = o.opts.BatchSize
	}

	input := map[string]any{
		"audio": resolved.Audio,
	}
	if req.Options.Language != "" {
		input["language"] = req.Options.Language
	}
	if req.Options.Diarize {
		input["diarise_audio"] = true
	}

	pred, err := o.predict.SubmitWithRetry(ctx, predict.SubmitParams{
		ModelRef:  o.opts.ModelRef,
		Input:     input,
		BatchSize: batch,
	})
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		failed := o.markFailed(ctx, sess.ID, err.Error())
		if failed != nil {
			sess = failed
		}
		return sess, err
	}
	metrics.SubmissionsTotal.WithLabelValues("submitted").Inc()

	status := session.Status(pred.Status)
	if status == "" {
		status = session.StatusStarting
	}
	progress := 5
	updated, err := o.store.Update(ctx, sess.ID, session.Patch{
		JobID:    &pred.ID,
		Status:   &status,
		Progress: &progress,
	})
	if err != nil {
		return sess, fmt.Errorf("persist job id: %w", err)
	}
	if updated != nil {
		sess = updated
	}
	o.publish(sess)

	o.spawnPoller(sess.ID, pred.ID)

	o.log.Info().
		Str("session_id", sess.ID).
		Str("job_id", pred.ID).
		Str("status", string(sess.Status)).
		Msg("transcription started")

	return sess, nil
}

// Resume re-enters the polling loop for a recovered session.
func (o *Orchestrator) Resume(_ context.Context, s *session.Session) error {
	if s == nil || !s.Active() {
		return fmt.Errorf("session is not resumable")
	}
	if s.JobID == "" {
		return fmt.Errorf("session %s has no job to poll", s.ID)
	}
	o.spawnPoller(s.ID, s.JobID)
	o.log.Info().Str("session_id", s.ID).Str("job_id", s.JobID).Msg("polling resumed")
	return nil
}

// Cancel stops the session's poll loop and marks it failed so it is never
// left orphaned as processing.
func (o *Orchestrator) Cancel(ctx context.Context, id string) {
	o.stopPoller(id)
	s, err := o.store.Get(ctx, id)
	if err != nil || s == nil || !s.Active() {
		return
	}
	o.markFailed(ctx, id, "canceled")
}

// Delete cancels any polling, removes the uploaded payload if one exists,
// and deletes the session.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	o.Cancel(ctx, id)

	s, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}

	if s.AudioSource.UploadPath != "" && o.cleaner != nil {
		if err := o.cleaner.Delete(ctx, s.AudioSource.UploadPath); err != nil {
			o.log.Warn().Err(err).
				Str("session_id", id).
				Str("path", s.AudioSource.UploadPath).
				Msg("failed to delete uploaded payload")
		}
	}

	return o.store.Delete(ctx, id)
}

// Stop cancels all poll loops and waits for them to exit.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()
	o.log.Info().Msg("orchestrator stopped")
}

// supersedeActive retires the previous active session before a new one is
// created, so the store's one-active-session constraint holds and no poll
// loop is left running for a session nobody is watching.
func (o *Orchestrator) supersedeActive(ctx context.Context) {
	active, err := o.store.GetActive(ctx)
	if err != nil || active == nil {
		return
	}
	o.stopPoller(active.ID)
	o.markFailed(ctx, active.ID, "superseded by a newer transcription")
	o.log.Info().Str("session_id", active.ID).Msg("previous active session superseded")
}

func (o *Orchestrator) markFailed(ctx context.Context, id, msg string) *session.Session {
	failed := session.StatusFailed
	s, err := o.store.Update(ctx, id, session.Patch{Status: &failed, Error: &msg})
	if err != nil {
		o.log.Error().Err(err).Str("session_id", id).Msg("failed to mark session failed")
		return nil
	}
	if s != nil {
		metrics.ActiveSessions.Dec()
		o.publish(s)
	}
	return s
}

func (o *Orchestrator) publish(s *session.Session) {
	if o.events != nil && s != nil {
		o.events.PublishStatus(s)
	}
}

func (o *Orchestrator) spawnPoller(sessionID, jobID string) {
	o.mu.Lock()
	if _, running := o.pollers[sessionID]; running {
		o.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(o.ctx)
	o.pollers[sessionID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go o.pollLoop(ctx, sessionID, jobID)
}

func (o *Orchestrator) stopPoller(sessionID string) {
	o.mu.Lock()
	cancel, ok := o.pollers[sessionID]
	if ok {
		delete(o.pollers, sessionID)
	}
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

func (o *Orchestrator) removePoller(sessionID string) {
	o.mu.Lock()
	delete(o.pollers, sessionID)
	o.mu.Unlock()
}

// pollLoop drives one session to a terminal state on a fixed interval.
func (o *Orchestrator) pollLoop(ctx context.Context, sessionID, jobID string) {
	defer o.wg.Done()
	defer o.removePoller(sessionID)

	log := o.log.With().Str("session_id", sessionID).Str("job_id", jobID).Logger()

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	progress := 5
	failures := 0

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("poll loop canceled")
			return
		case <-ticker.C:
		}

		metrics.PollsTotal.Inc()

		pred, err := o.predict.Get(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			log.Warn().Err(err).Int("consecutive_failures", failures).Msg("poll failed")
			if failures >= maxConsecutivePollFailures {
				o.markFailed(context.Background(), sessionID, fmt.Sprintf("polling failed: %v", err))
				return
			}
			continue
		}
		failures = 0

		switch pred.Status {
		case predict.StatusStarting:
			// Progress stays at the submission floor.

		case predict.StatusProcessing:
			if progress < 90 {
				progress += 10
				if progress > 90 {
					progress = 90
				}
			}
			processing := session.StatusProcessing
			s, err := o.store.Update(ctx, sessionID, session.Patch{
				Status:   &processing,
				Progress: &progress,
			})
			if err != nil {
				log.Warn().Err(err).Msg("failed to persist progress")
			}
			o.publish(s)

		case predict.StatusSucceeded:
			result := parseOutput(pred.Output)
			succeeded := session.StatusSucceeded
			done := 100
			s, err := o.store.Update(ctx, sessionID, session.Patch{
				Status:       &succeeded,
				Progress:     &done,
				Result:       result,
				Segments:     result.Segments,
				Intelligence: result.Intelligence,
			})
			if err != nil {
				log.Error().Err(err).Msg("failed to persist result")
				return
			}
			metrics.ActiveSessions.Dec()
			o.publish(s)
			log.Info().Int("segments", len(result.Segments)).Msg("transcription succeeded")
			return

		case predict.StatusFailed:
			msg := pred.Error
			if msg == "" {
				msg = "prediction failed"
			}
			o.markFailed(ctx, sessionID, msg)
			log.Warn().Str("error", msg).Msg("transcription failed")
			return
		}
	}
}
