package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/biud436/blog-api-server-sub000/internal/domain/transaction"
)

// PostgreSQL のエラーコード
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// translateError は直列化失敗とデッドロックを ErrSerializationFailure にする
func translateError(err error) error {
	if err == nil || errors.Is(err, transaction.ErrSerializationFailure) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", transaction.ErrSerializationFailure, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
