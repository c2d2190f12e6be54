// Package orchestrator управляет выполнением runs.
//
// Orchestrator отвечает за:
//   - Получение новых runs из очереди RabbitMQ (и polling fallback)
//   - Атомарный захват run (PENDING → RUNNING)
//   - Построение DAG из спеки версии workflow
//   - Выполнение графа через engine.Runner
//   - Отмену выполняющихся runs по запросу
//   - Финализацию run (SUCCEEDED/FAILED/CANCELLED) и публикацию события
//
// Orchestrator — это "мозг" системы, который координирует выполнение.
package orchestrator
