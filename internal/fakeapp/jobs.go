package fakeapp

import (
	"context"
	"net/http"

	"github.com/kuitang/knowledge-e2e/internal/errs"
	"github.com/kuitang/knowledge-e2e/internal/model"
)

// Values for a source's config["simulate"] that steer its extraction jobs.
const (
	SimulateStall = "stall" // job stays running forever
	SimulateFail  = "fail"  // job fails on its first poll
)

// documentsPerSource is the document count a completed extraction reports.
const documentsPerSource = 12

func (s *Server) startExtraction(w http.ResponseWriter, r *http.Request) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	ctx := r.Context()
	src, err := s.store.GetSource(ctx, r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	running, err := s.store.RunningJobFor(ctx, src.ID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if running != nil {
		s.writeErr(w, r, errs.New(errs.Conflict, "Extraction already running for source "+src.ID))
		return
	}

	job, err := s.store.CreateJob(ctx, src.ID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	src.Status = model.SourceStatusExtracting
	if _, err := s.store.SaveSource(ctx, src); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// getJob returns the job after advancing it by one step. Progress is driven by polls
// rather than wall time so poll counts in tests are deterministic.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job, err := s.advanceJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) advanceJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Terminal() {
		return job, nil
	}

	src, err := s.store.GetSource(ctx, job.SourceID)
	if errs.Is(err, errs.NotFound) {
		job.Status = model.JobFailed
		job.Error = "source was deleted"
		job.CompletedAt = s.store.stamp(job.CreatedAt)
		return job, s.store.SaveJob(ctx, job)
	}
	if err != nil {
		return nil, err
	}

	simulate, _ := src.Config["simulate"].(string)
	switch simulate {
	case SimulateStall:
		return job, nil
	case SimulateFail:
		job.Status = model.JobFailed
		job.Error = "Extraction failed"
		src.Status = model.SourceStatusError
	default:
		job.Progress = min(job.Progress+s.opts.JobStep, 100)
		if job.Progress == 100 {
			job.Status = model.JobCompleted
			job.Documents = documentsPerSource
			src.Status = model.SourceStatusActive
			src.Documents = documentsPerSource
		}
	}

	if job.Terminal() {
		job.CompletedAt = s.store.stamp(job.CreatedAt)
		if _, err := s.store.SaveSource(ctx, src); err != nil {
			return nil, err
		}
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}
