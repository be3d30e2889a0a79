package auth

import (
	"fmt"
	"net/http"
)

// Проверка токена живет во внешнем сервисе аутентификации:
// гейтвей валидирует Authorization и проставляет X-User-Id.
// Здесь мы только читаем результат этой проверки.
const userIDHeader = "X-User-Id"

// VerifyRequest возвращает идентификатор пользователя из запроса
func VerifyRequest(r *http.Request) (string, error) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		return "", fmt.Errorf("no user identity header")
	}

	return userID, nil
}
