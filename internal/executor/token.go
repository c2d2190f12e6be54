package executor

import "context"

// TokenSource выдаёт действующий access token для OAuth-учётки.
//
// Реализация живёт в пакете provider: она читает учётку из хранилища
// и при необходимости обновляет токен через провайдера. Исполнителям
// важен только результат — строка для заголовка Authorization.
type TokenSource interface {
	AccessToken(ctx context.Context, connectionID string) (string, error)
}
