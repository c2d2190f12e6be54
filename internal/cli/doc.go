// Package cli реализует инструмент командной строки Conveyor.
//
// # Обзор
//
// CLI управляет workflows, runs, schedules и OAuth-учётками напрямую
// через Postgres и RabbitMQ — отдельного API-сервера у системы нет.
// Отсутствие RabbitMQ не фатально: созданные runs подхватывает
// orchestrator через polling.
//
// # Ключевые компоненты
//
// ## Service
//
// Обёртка над репозиториями и publisher'ом. Инкапсулирует разрешение
// workflow по ID или имени, выбор версии и идемпотентный запуск runs.
//
//	svc, err := cli.NewService(ctx)
//	runs, err := svc.ListRuns(ctx, "my-workflow", "FAILED", 20)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: conveyor run list --json | jq .
package cli
