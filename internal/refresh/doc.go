// Package refresh содержит фоновое обновление OAuth-токенов.
//
// Refresher на фиксированном тикере выбирает учётки с истекающими
// токенами и обновляет их через provider.TokenProvider. Circuit breaker
// защищает от бесполезного долбления при недоступном хранилище или
// массово падающих провайдерах: после порога подряд неудачных тиков
// цикл пропускает тики до cooldown, затем пробует снова.
package refresh
