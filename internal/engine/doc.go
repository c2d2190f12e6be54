// Package engine содержит ядро выполнения workflow.
//
// Включает:
//   - graph.go     — построение BuiltWorkflow из спецификации (Kahn, уровни)
//   - queue.go     — машина состояний узлов одного run
//   - cascade.go   — каскадный skip зависимых узлов при падении
//   - context.go   — накопление выходов узлов для разрешения входов
//   - retry.go     — классификация ошибок и exponential backoff
//   - scheduler.go — цикл планировщика (батчи с барьером, отмена)
//   - errors.go    — таксономия ошибок узлов и ошибки валидации
//
// Пакет не знает про БД, MQ и HTTP: внешние способности приходят через
// узкие интерфейсы NodeExecutor и Observer. BuiltWorkflow неизменяем и
// может разделяться параллельными runs; ExecutionQueue и RunContext
// принадлежат ровно одному run.
package engine
