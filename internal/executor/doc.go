// Package executor содержит исполнителей типов узлов workflow.
//
// Registry реализует engine.NodeExecutor и диспетчеризует выполнение
// по типу узла. Стандартные типы:
//
//   - trigger   — входной узел, пробрасывает входы run
//   - http      — запрос к внешнему API, с подстановкой OAuth токена
//   - transform — трансформация данных через Go templates
//   - delay     — пауза внутри ветки
//   - output    — сборка итогового результата run
//
// Исполнители возвращают типизированные ошибки (*engine.ExecError):
// тег и HTTP-код определяют, будет ли попытка повторена политикой
// ретраев. Retry-логика живёт в engine, исполнители просто падают.
package executor
