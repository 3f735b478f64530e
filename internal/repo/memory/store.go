// Package memory — in-memory реализация хранилища quizflow.
// Потокобезопасна. Предназначена для тестов и локальной разработки.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/events"
	"github.com/shaiso/quizflow/internal/repo"
	"github.com/shaiso/quizflow/internal/uow"
)

var _ uow.Store = (*Store)(nil)

// Store хранит все сущности в памяти.
//
// Транзакция (InTx) удерживает мьютекс хранилища целиком, изменения
// применяются только при успешном завершении fn.
type Store struct {
	mu sync.Mutex

	quizzes       map[uuid.UUID]*domain.Quiz
	submissions   map[uuid.UUID]*domain.Submission
	jobs          map[uuid.UUID]*domain.Job
	notifications map[uuid.UUID]*domain.Notification
	activities    []*domain.Activity
	users         map[uuid.UUID]*domain.User
	groups        map[uuid.UUID][]uuid.UUID // group_id -> user_ids

	commits int
}

// New возвращает пустое хранилище.
func New() *Store {
	return &Store{
		quizzes:       make(map[uuid.UUID]*domain.Quiz),
		submissions:   make(map[uuid.UUID]*domain.Submission),
		jobs:          make(map[uuid.UUID]*domain.Job),
		notifications: make(map[uuid.UUID]*domain.Notification),
		users:         make(map[uuid.UUID]*domain.User),
		groups:        make(map[uuid.UUID][]uuid.UUID),
	}
}

// --- Seed helpers ---

// AddUser добавляет пользователя.
func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// AddGroupMember добавляет пользователя в группу.
func (s *Store) AddGroupMember(groupID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[groupID] = append(s.groups[groupID], userID)
}

// Commits возвращает количество успешных транзакций.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// --- Transactions ---

// InTx реализует uow.Store.
func (s *Store) InTx(ctx context.Context, buf *events.Buffer, fn func(ctx context.Context, tx uow.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:         s,
		buf:           buf,
		quizzes:       make(map[uuid.UUID]*domain.Quiz),
		submissions:   make(map[uuid.UUID]*domain.Submission),
		notifications: nil,
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for id, q := range tx.quizzes {
		s.quizzes[id] = q
	}
	for id, sub := range tx.submissions {
		s.submissions[id] = sub
	}
	for _, n := range tx.notifications {
		s.notifications[n.ID] = n
	}
	s.commits++
	return nil
}

type memTx struct {
	store *Store
	buf   *events.Buffer

	quizzes       map[uuid.UUID]*domain.Quiz
	submissions   map[uuid.UUID]*domain.Submission
	notifications []*domain.Notification
}

func (t *memTx) Quiz(_ context.Context, id uuid.UUID) (*domain.Quiz, error) {
	if q, ok := t.quizzes[id]; ok {
		return cloneQuiz(q), nil
	}
	q, ok := t.store.quizzes[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cloneQuiz(q), nil
}

func (t *memTx) CreateQuiz(_ context.Context, q *domain.Quiz) error {
	if _, ok := t.store.quizzes[q.ID]; ok {
		return repo.ErrAlreadyExists
	}
	t.buf.Collect(q)
	t.quizzes[q.ID] = cloneQuiz(q)
	return nil
}

func (t *memTx) SaveQuiz(_ context.Context, q *domain.Quiz) error {
	_, staged := t.quizzes[q.ID]
	if _, ok := t.store.quizzes[q.ID]; !ok && !staged {
		return repo.ErrNotFound
	}
	t.buf.Collect(q)
	t.quizzes[q.ID] = cloneQuiz(q)
	return nil
}

func (t *memTx) AddNotifications(_ context.Context, ns []*domain.Notification) error {
	for _, n := range ns {
		t.buf.Collect(n)
		t.notifications = append(t.notifications, cloneNotification(n))
	}
	return nil
}

func (t *memTx) CreateSubmission(_ context.Context, sub *domain.Submission) error {
	if t.hasSubmission(sub.QuizID, sub.StudentID) {
		return fmt.Errorf("submission for student %s: %w", sub.StudentID, repo.ErrAlreadyExists)
	}
	c := *sub
	t.submissions[sub.ID] = &c
	return nil
}

func (t *memTx) hasSubmission(quizID, studentID uuid.UUID) bool {
	for _, s := range t.submissions {
		if s.QuizID == quizID && s.StudentID == studentID {
			return true
		}
	}
	for _, s := range t.store.submissions {
		if s.QuizID == quizID && s.StudentID == studentID {
			return true
		}
	}
	return false
}

func (t *memTx) Submission(_ context.Context, id uuid.UUID) (*domain.Submission, error) {
	if s, ok := t.submissions[id]; ok {
		c := *s
		return &c, nil
	}
	s, ok := t.store.submissions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (t *memTx) SaveSubmission(_ context.Context, sub *domain.Submission) error {
	_, staged := t.submissions[sub.ID]
	if _, ok := t.store.submissions[sub.ID]; !ok && !staged {
		return repo.ErrNotFound
	}
	c := *sub
	t.submissions[sub.ID] = &c
	return nil
}

func (t *memTx) ListSubmissions(_ context.Context, quizID uuid.UUID) ([]*domain.Submission, error) {
	merged := make(map[uuid.UUID]*domain.Submission)
	for id, s := range t.store.submissions {
		if s.QuizID == quizID {
			merged[id] = s
		}
	}
	for id, s := range t.submissions {
		if s.QuizID == quizID {
			merged[id] = s
		}
	}

	out := make([]*domain.Submission, 0, len(merged))
	for _, s := range merged {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// --- Quizzes ---

// GetQuiz возвращает квиз вне транзакции.
func (s *Store) GetQuiz(_ context.Context, id uuid.UUID) (*domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cloneQuiz(q), nil
}

// ListSubmissionsByQuiz возвращает попытки по квизу.
func (s *Store) ListSubmissionsByQuiz(_ context.Context, quizID uuid.UUID) ([]*domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Submission
	for _, sub := range s.submissions {
		if sub.QuizID == quizID {
			c := *sub
			out = append(out, &c)
		}
	}
	return out, nil
}

func cloneQuiz(q *domain.Quiz) *domain.Quiz {
	c := *q
	c.Recorder = domain.Recorder{}
	c.GroupIDs = append([]uuid.UUID(nil), q.GroupIDs...)
	return &c
}

// --- Users & recipients ---

// QuizRecipients возвращает уникальных студентов групп, назначенных квизу.
func (s *Store) QuizRecipients(_ context.Context, quizID uuid.UUID) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, nil
	}

	seen := make(map[uuid.UUID]bool)
	var out []domain.Recipient
	for _, groupID := range q.GroupIDs {
		for _, userID := range s.groups[groupID] {
			if seen[userID] {
				continue
			}
			u, ok := s.users[userID]
			if !ok || u.Role != domain.RoleStudent {
				continue
			}
			seen[userID] = true
			out = append(out, u.Recipient())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DisplayName возвращает имя пользователя.
func (s *Store) DisplayName(_ context.Context, userID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return "", repo.ErrNotFound
	}
	return u.Name, nil
}

// --- Activities ---

// AppendActivity добавляет запись журнала.
func (s *Store) AppendActivity(_ context.Context, a *domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *a
	s.activities = append(s.activities, &c)
	return nil
}

// ListActivities возвращает последние записи журнала (новые первыми).
func (s *Store) ListActivities(_ context.Context, limit int) ([]*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit = repo.LimitOrDefault(limit)

	out := make([]*domain.Activity, 0, limit)
	for i := len(s.activities) - 1; i >= 0 && len(out) < limit; i-- {
		c := *s.activities[i]
		out = append(out, &c)
	}
	return out, nil
}

// --- Notifications ---

// ListNotifications возвращает уведомления пользователя (новые первыми).
func (s *Store) ListNotifications(_ context.Context, f repo.NotificationFilter) ([]*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Notification
	for _, n := range s.notifications {
		if n.UserID != f.UserID {
			continue
		}
		if f.UnreadOnly && n.IsRead {
			continue
		}
		out = append(out, cloneNotification(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Offset, repo.LimitOrDefault(f.Limit)), nil
}

// CountNotifications возвращает общее количество уведомлений.
func (s *Store) CountNotifications() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

// SetNotificationRead меняет состояние прочтения уведомления пользователя.
func (s *Store) SetNotificationRead(_ context.Context, id, userID uuid.UUID, read bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return repo.ErrNotFound
	}
	if read {
		n.MarkRead(now)
	} else {
		n.MarkUnread()
	}
	return nil
}

// DeleteReadNotificationsBefore удаляет прочитанные уведомления старше before.
func (s *Store) DeleteReadNotificationsBefore(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for id, notif := range s.notifications {
		if notif.IsRead && notif.CreatedAt.Before(before) {
			delete(s.notifications, id)
			n++
		}
	}
	return n, nil
}

func cloneNotification(n *domain.Notification) *domain.Notification {
	c := *n
	c.Recorder = domain.Recorder{}
	c.Data = maps.Clone(n.Data)
	return &c
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
