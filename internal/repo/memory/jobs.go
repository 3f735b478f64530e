package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/repo"
)

// InsertJob сохраняет задачу. Если задача с тем же (type, target, fire_at)
// уже есть, возвращает её id и ничего не создаёт.
func (s *Store) InsertJob(_ context.Context, j *domain.Job) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.Type == j.Type && existing.TargetID == j.TargetID && existing.FireAt.Equal(j.FireAt) {
			return existing.ID, nil
		}
	}
	c := *j
	s.jobs[j.ID] = &c
	return j.ID, nil
}

// FetchDue атомарно захватывает до limit задач, готовых к выполнению.
// Захват выполняется под мьютексом, поэтому одна задача не выдаётся двум воркерам.
func (s *Store) FetchDue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.Job
	for _, j := range s.jobs {
		if j.IsDue(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if !due[i].FireAt.Equal(due[k].FireAt) {
			return due[i].FireAt.Before(due[k].FireAt)
		}
		return due[i].NextAttemptAt.Before(due[k].NextAttemptAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*domain.Job, 0, len(due))
	for _, j := range due {
		j.Claim(now, lease)
		c := *j
		out = append(out, &c)
	}
	return out, nil
}

// GetJob возвращает задачу по ID.
func (s *Store) GetJob(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := *j
	return &c, nil
}

// UpdateJob сохраняет изменения задачи.
func (s *Store) UpdateJob(_ context.Context, j *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return repo.ErrNotFound
	}
	c := *j
	s.jobs[j.ID] = &c
	return nil
}

// CancelJobs отменяет ожидающие задачи типа jobType для цели.
func (s *Store) CancelJobs(_ context.Context, jobType string, targetID uuid.UUID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, j := range s.jobs {
		if j.Type == jobType && j.TargetID == targetID && j.Status == domain.JobStatusPending {
			j.Status = domain.JobStatusCancelled
			j.CompletedAt = &now
			j.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// ListJobs возвращает задачи по фильтру, упорядоченные по fire_at.
func (s *Store) ListJobs(_ context.Context, f repo.JobFilter) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Job
	for _, j := range s.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		if f.TargetID != nil && j.TargetID != *f.TargetID {
			continue
		}
		c := *j
		out = append(out, &c)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].FireAt.Before(out[k].FireAt) })
	return paginate(out, f.Offset, repo.LimitOrDefault(f.Limit)), nil
}
