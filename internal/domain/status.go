package domain

// QuizStatus — статус квиза.
//
// Жизненный цикл (только вперёд, без отката публикации):
//
//	DRAFT → PUBLISHED → CLOSED
type QuizStatus string

const (
	// QuizStatusDraft — черновик, студенты квиз не видят.
	QuizStatusDraft QuizStatus = "DRAFT"

	// QuizStatusPublished — опубликован, доступен в окне AvailableFrom..AvailableTo.
	QuizStatusPublished QuizStatus = "PUBLISHED"

	// QuizStatusClosed — закрыт (вручную или автоматически по AvailableTo).
	QuizStatusClosed QuizStatus = "CLOSED"
)

// String возвращает строковое представление QuizStatus.
func (s QuizStatus) String() string {
	return string(s)
}

// ParseQuizStatus парсит строку в QuizStatus.
func ParseQuizStatus(s string) QuizStatus {
	switch s {
	case "PUBLISHED":
		return QuizStatusPublished
	case "CLOSED":
		return QuizStatusClosed
	default:
		return QuizStatusDraft
	}
}

// SubmissionStatus — статус попытки прохождения квиза.
//
// Жизненный цикл:
//
//	IN_PROGRESS → SUBMITTED → GRADED
type SubmissionStatus string

const (
	SubmissionStatusInProgress SubmissionStatus = "IN_PROGRESS"
	SubmissionStatusSubmitted  SubmissionStatus = "SUBMITTED"
	SubmissionStatusGraded     SubmissionStatus = "GRADED"
)

// JobStatus — статус отложенной задачи.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → DONE
//	             ↘ PENDING (retry, с NextAttemptAt в будущем)
//	             ↘ FAILED  (исчерпаны попытки или возраст)
//	PENDING → CANCELLED
type JobStatus string

const (
	// JobStatusPending — ожидает наступления NextAttemptAt.
	JobStatusPending JobStatus = "PENDING"

	// JobStatusRunning — захвачена воркером до LeaseUntil.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusDone — успешно выполнена (или признана устаревшей).
	JobStatusDone JobStatus = "DONE"

	// JobStatusFailed — выполнение прекращено, требуется внимание оператора.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusCancelled — отменена до срабатывания.
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDone, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseJobStatus парсит строку в JobStatus.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning, JobStatusDone, JobStatusFailed, JobStatusCancelled:
		return JobStatus(s), true
	default:
		return "", false
	}
}
