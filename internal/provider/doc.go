// Package provider содержит каталог OAuth-провайдеров и выдачу токенов.
//
// Registry — реестр реализаций Provider по имени, заполняется на старте
// сервиса. OAuth2Provider покрывает стандартный authorization code flow;
// провайдеры с причудами протокола пишут собственную реализацию.
//
// StateStore — явно владеемое хранилище pending OAuth state-токенов
// с TTL и одноразовым потреблением (вместо процессного синглтона).
//
// TokenProvider выдаёт действующие access tokens по connection ID,
// обновляя истекающие токены через провайдера и сохраняя новую пару
// в хранилище учёток. Он реализует executor.TokenSource.
package provider
