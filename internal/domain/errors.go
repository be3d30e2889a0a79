package domain

import (
	"errors"
	"fmt"
)

// Базовые ошибки подсистемы чанковой загрузки
var (
	ErrSessionNotFound     = errors.New("upload session not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidState        = errors.New("invalid session state")
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")
	ErrStorageUnavailable  = errors.New("chunk storage unavailable")
	ErrAccessDenied        = errors.New("access denied")
)

// IncompleteUploadError возвращается при попытке завершить сессию,
// у которой загружены не все чанки
type IncompleteUploadError struct {
	SessionID string
	Missing   []int
}

func (e *IncompleteUploadError) Error() string {
	return fmt.Sprintf("upload session %s is incomplete: %d chunk(s) missing %v",
		e.SessionID, len(e.Missing), e.Missing)
}

// UploadFailedError возвращается, когда загрузка чанка исчерпала все попытки
type UploadFailedError struct {
	SessionID string
	Index     int
	Attempts  int
	Err       error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("chunk %d of session %s failed after %d attempt(s): %v",
		e.Index, e.SessionID, e.Attempts, e.Err)
}

func (e *UploadFailedError) Unwrap() error {
	return e.Err
}
