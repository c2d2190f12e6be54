package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule описывает автоматический запуск workflow: либо по
// cron-выражению ("0 9 * * *"), либо с фиксированным интервалом
// в секундах. Cron имеет приоритет, если задано и то и другое.
//
// Scheduler сравнивает NextDueAt с текущим временем и создаёт run,
// когда срок подошёл.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// WorkflowID — какой workflow запускать.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Name — человекочитаемое имя расписания.
	Name string `json:"name,omitempty"`

	// CronExpr — 5-польное cron-выражение
	// (минуты часы дни месяцы дни_недели).
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — период в секундах; действует, когда CronExpr пуст.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс вычисления срока (default: UTC).
	Timezone string `json:"timezone"`

	// Enabled — выключенные расписания scheduler не трогает.
	Enabled bool `json:"enabled"`

	// NextDueAt — срок следующего запуска (UTC).
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — когда расписание сработало в последний раз.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRunID — run, созданный последним срабатыванием.
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`

	// Inputs — входные параметры, передаваемые каждому run.
	Inputs map[string]any `json:"inputs,omitempty"`

	// CreatedAt — время создания schedule.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron — расписание задано cron-выражением.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval — расписание задано интервалом.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue сообщает, пора ли создавать run.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun фиксирует срабатывание и назначает следующий срок.
func (s *Schedule) RecordRun(runID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	s.LastRunID = &runID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}
