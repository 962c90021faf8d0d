package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sjsage522/listingharvester/helpers"
	"sjsage522/listingharvester/internal/pipeline"
	errs "sjsage522/listingharvester/pkg/errors"
	"sjsage522/listingharvester/services/jobs"
	"sjsage522/listingharvester/services/publisher"
)

// Messages shown to the requester
const (
	acceptedText = "⏳ درحال استخراج، لطفا منتظر بمانید"
	failedFormat = "❌ Failed: %v"
)

// Runner harvests one listing page into an encoded report
type Runner interface {
	Run(ctx context.Context, targetURL string) (*pipeline.Output, error)
}

// Worker consumes harvest jobs and publishes their results
type Worker struct {
	ctx       context.Context
	runner    Runner
	queue     jobs.Queue
	publisher publisher.Publisher
	logger    helpers.LoggerInterface

	batch   int
	block   time.Duration
	backoff time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
}

// NewWorker creates a new worker running at most concurrency jobs at once
func NewWorker(
	ctx context.Context,
	runner Runner,
	queue jobs.Queue,
	pub publisher.Publisher,
	logger helpers.LoggerInterface,
	concurrency int,
) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		ctx:       ctx,
		runner:    runner,
		queue:     queue,
		publisher: pub,
		logger:    logger,
		batch:     concurrency,
		block:     5 * time.Second,
		backoff:   time.Second,
		slots:     make(chan struct{}, concurrency),
	}
}

// Start consumes jobs until the worker context is cancelled, then waits for running jobs
func (w *Worker) Start() {
	defer w.wg.Wait()

	for w.ctx.Err() == nil {
		batch, err := w.queue.Read(w.ctx, w.batch, w.block)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.logger.LogError("JobQueue", errs.NewQueue("read", "failed to read jobs", err))
			w.pause()
			continue
		}

		for i, job := range batch {
			select {
			case w.slots <- struct{}{}:
			case <-w.ctx.Done():
				w.abandon(batch[i:])
				return
			}
			if w.ctx.Err() != nil {
				<-w.slots
				w.abandon(batch[i:])
				return
			}

			w.wg.Add(1)
			go func(job jobs.Job) {
				defer w.wg.Done()
				defer func() { <-w.slots }()
				w.handle(job)
			}(job)
		}
	}
}

func (w *Worker) pause() {
	timer := time.NewTimer(w.backoff)
	defer timer.Stop()
	select {
	case <-w.ctx.Done():
	case <-timer.C:
	}
}

// abandon answers and acknowledges jobs that were read but never started
func (w *Worker) abandon(batch []jobs.Job) {
	for _, job := range batch {
		if pipeline.ValidateURL(job.URL) == nil {
			err := errs.NewCancelled(job.URL, w.ctx.Err())
			w.publish(job, jobs.Result{
				Status:    jobs.StatusFailed,
				Text:      fmt.Sprintf(failedFormat, err),
				ErrorType: string(errs.ErrorTypeCancelled),
			})
		}
		w.ack(job)
	}
	w.logger.LogInfo("Abandoned %d jobs on shutdown", len(batch))
}

// handle runs one job and acknowledges it whatever the outcome
func (w *Worker) handle(job jobs.Job) {
	defer w.ack(job)

	// links are the only thing a requester can ask for; anything else is ignored
	if err := pipeline.ValidateURL(job.URL); err != nil {
		w.logger.LogInfo("Ignoring job %s: not a link", job.ID)
		return
	}

	w.publish(job, jobs.Result{Status: jobs.StatusAccepted, Text: acceptedText})

	start := time.Now()
	result := w.process(job)
	w.publish(job, result)

	w.logger.LogInfo("Job %s %s in %s (%d rows)", job.ID, result.Status, time.Since(start).Round(time.Millisecond), result.Count)

	if err := w.publisher.TrimStreams(); err != nil {
		w.logger.LogError("StreamTrimming", err)
	}
}

// process runs the harvest and turns its outcome into a result message
func (w *Worker) process(job jobs.Job) jobs.Result {
	out, err := w.runner.Run(w.ctx, job.URL)
	if err != nil {
		w.logger.LogError(job.URL, err)
		result := jobs.Result{
			Status: jobs.StatusFailed,
			Text:   fmt.Sprintf(failedFormat, err),
		}
		var ce *errs.CrawlerError
		if errors.As(err, &ce) {
			result.ErrorType = string(ce.Type)
		}
		return result
	}

	return jobs.Result{
		Status:      jobs.StatusSucceeded,
		Text:        out.Caption,
		Filename:    out.Filename,
		ContentType: out.ContentType,
		Document:    out.Payload,
		Count:       out.Count,
		Collected:   out.Collected,
		Stats:       out.Stats,
	}
}

func (w *Worker) publish(job jobs.Job, result jobs.Result) {
	result.JobID = job.ID
	result.URL = job.URL
	result.ReplyTo = job.ReplyTo
	result.Time = time.Now().UTC()

	data, err := json.Marshal(result)
	if err != nil {
		w.logger.LogError(job.ID, err)
		return
	}
	if err := w.publisher.Publish(publisher.ResultKey, data); err != nil {
		w.logger.LogError(job.ID, err)
	}
}

func (w *Worker) ack(job jobs.Job) {
	// acknowledging must survive worker shutdown
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), 5*time.Second)
	defer cancel()
	if err := w.queue.Ack(ctx, job); err != nil {
		w.logger.LogError("JobQueue", errs.NewQueue(job.ID, "failed to acknowledge job", err))
	}
}
