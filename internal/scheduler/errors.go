package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrUnknownJobType — для типа задачи не зарегистрирован обработчик.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrRetryExhausted — исчерпаны попытки или превышен возраст задачи.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrJobNotRetryable — задачу нельзя перезапустить в текущем статусе.
	ErrJobNotRetryable = errors.New("job is not in a retryable status")
)

// permanentError помечает ошибку обработчика как неповторяемую.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent оборачивает err: задача сразу переходит в FAILED без повторов.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent сообщает, помечена ли ошибка как неповторяемая.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
