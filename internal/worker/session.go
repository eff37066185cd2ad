package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
	"github.com/JakeFAU/artist-crawler/internal/metrics"
	"github.com/JakeFAU/artist-crawler/internal/progress"
)

// Outcome reasons for locations that end without an error.
const (
	ReasonDone               = "done"
	ReasonExtracted          = "extracted"
	ReasonNavigationRejected = "navigation_rejected"
	ReasonMaxVisits          = "max_visits_reached"
)

// session holds the mutable state of one location crawl.
type session struct {
	w       *Worker
	job     crawler.Job
	logger  *zap.Logger
	out     Outcome
	anchor  string
	visited []string
	seen    map[string]struct{}
}

func (s *session) run(ctx context.Context) {
	seed := crawler.NormalizeSeed(s.job.Location.SeedURL)
	anchor, err := crawler.Host(seed)
	if err != nil {
		s.fail(ctx, crawler.FailureFetch, "invalid_seed", fmt.Errorf("seed %q: %w", s.job.Location.SeedURL, err))
		return
	}
	s.anchor = anchor
	s.seen = make(map[string]struct{})

	current := seed
	for s.out.PagesVisited < s.w.cfg.MaxPageVisits {
		next, finished := s.step(ctx, current)
		if finished {
			return
		}
		current = next
	}

	s.audit(ctx, crawler.AuditMaxVisitsReached)
	s.finish(ReasonMaxVisits)
}

// step fetches and decides on one page. It returns the next URL to visit,
// or finished=true once the location has reached an outcome.
func (s *session) step(ctx context.Context, current string) (string, bool) {
	resp, err := s.w.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{LocationID: s.job.Location.ID, URL: current})
	if err != nil {
		s.fail(ctx, crawler.FailureFetch, fetchCause(err), err)
		return "", true
	}
	s.out.PagesVisited++
	s.markVisited(current)
	s.archive(ctx, resp.Body)
	s.w.emit(progress.Event{
		RunID:       s.job.RunID,
		LocationID:  s.job.Location.ID,
		Stage:       progress.StagePageFetched,
		Site:        metrics.SanitizeSite(current),
		URL:         current,
		Bytes:       int64(len(resp.Body)),
		StatusClass: progress.ClassifyStatus(resp.StatusCode),
		Dur:         resp.Duration,
	})

	page, err := s.w.preparePage(resp.Body, s.anchor)
	if err != nil {
		s.fail(ctx, crawler.FailureFetch, "preprocess", err)
		return "", true
	}

	action, err := s.w.deps.Decider.Decide(ctx, crawler.DecisionInput{
		URL:     current,
		HTML:    page,
		Visited: append([]string(nil), s.visited...),
	})
	if err != nil {
		s.fail(ctx, crawler.FailureDecision, causeOf(err), err)
		return "", true
	}
	s.w.emit(progress.Event{
		RunID:      s.job.RunID,
		LocationID: s.job.Location.ID,
		Stage:      progress.StageDecision,
		URL:        current,
		Action:     action.String(),
	})
	s.logger.Debug("decision", zap.String("url", current), zap.Stringer("action", action))

	switch a := action.(type) {
	case crawler.Navigate:
		target := crawler.ResolveURL(current, a.URL)
		if !crawler.SameHost(s.anchor, target) {
			s.logger.Info("navigation rejected",
				zap.String("target", a.URL),
				zap.String("anchor_host", s.anchor),
			)
			s.finish(ReasonNavigationRejected)
			return "", true
		}
		s.audit(ctx, crawler.NavigateLabel(target))
		return target, false
	case crawler.Extract:
		s.extract(ctx, current, page)
		return "", true
	case crawler.Done:
		s.audit(ctx, crawler.AuditDone)
		s.finish(ReasonDone)
		return "", true
	default:
		s.fail(ctx, crawler.FailureDecision, "unknown_action", fmt.Errorf("unknown action %T", action))
		return "", true
	}
}

func (s *session) extract(ctx context.Context, current, page string) {
	locationID := s.job.Location.ID

	known, err := s.w.deps.Store.ArtistNames(ctx, locationID)
	if err != nil {
		s.fail(ctx, crawler.FailurePersist, causeOf(err), fmt.Errorf("load artist names: %w", err))
		return
	}

	candidates, err := s.w.deps.Extractor.Extract(ctx, crawler.ExtractionInput{
		URL:        current,
		HTML:       page,
		KnownNames: known,
	})
	if err != nil {
		s.fail(ctx, crawler.FailureExtract, causeOf(err), err)
		return
	}

	added := 0
	for _, c := range candidates {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}

		_, err := s.w.deps.Store.SaveArtist(ctx, crawler.Artist{
			LocationID:      locationID,
			Name:            name,
			Email:           c.Email,
			Phone:           c.Phone,
			SocialLinks:     c.SocialLinks,
			YearsExperience: c.YearsExperience,
			Styles:          crawler.NormalizeStyles(c.Styles),
		})
		if err != nil {
			s.out.ArtistsAdded = added
			s.fail(ctx, crawler.FailurePersist, causeOf(err), fmt.Errorf("save artist %q: %w", c.Name, err))
			return
		}
		added++
	}

	s.out.ArtistsAdded = added
	s.audit(ctx, crawler.ExtractLabel(added))
	s.finish(ReasonExtracted)
}

func (s *session) markVisited(u string) {
	if _, ok := s.seen[u]; ok {
		return
	}
	s.seen[u] = struct{}{}
	s.visited = append(s.visited, u)
}

func (s *session) archive(ctx context.Context, body []byte) {
	if s.w.deps.Archiver == nil {
		return
	}
	uri, err := s.w.deps.Archiver.Save(ctx, s.job.Location.ID, body)
	if err != nil {
		s.logger.Warn("failed to archive page", zap.Error(err))
		return
	}
	s.logger.Debug("archived page", zap.String("uri", uri))
}

// audit appends an entry to the action log. Failures are logged and counted
// but never change the location outcome.
func (s *session) audit(ctx context.Context, label string) {
	err := s.w.deps.Store.LogAction(context.WithoutCancel(ctx), crawler.AuditEntry{
		LocationID: s.job.Location.ID,
		Action:     label,
		Timestamp:  s.w.deps.Clock.Now(),
	})
	if err != nil {
		metrics.ObserveAuditWriteFailure()
		s.logger.Error("failed to write audit entry", zap.String("action", label), zap.Error(err))
	}
}

func (s *session) finish(reason string) {
	s.out.Status = statusDone
	s.out.Reason = reason
}

func (s *session) fail(ctx context.Context, class, cause string, err error) {
	s.audit(ctx, crawler.ErrorLabel(class, cause))
	s.out.Status = statusFailed
	s.out.Reason = class
	s.out.Err = err
}

func fetchCause(err error) string {
	var fe *crawler.FetchError
	if errors.As(err, &fe) {
		return fe.Cause()
	}
	return causeOf(err)
}

// causeOf shortens an error to a single-line audit cause.
func causeOf(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	const maxCause = 200
	if len(msg) > maxCause {
		msg = msg[:maxCause]
	}
	return msg
}
