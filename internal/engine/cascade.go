package engine

// CascadeSkip помечает SKIPPED все узлы, транзитивно достижимые из
// упавшего узла по рёбрам dependents и ещё не достигшие финального
// состояния. Возвращает список пропущенных узлов в порядке обхода.
//
// Обход — в ширину. Узел с несколькими упавшими предками пропускается
// ровно один раз (семантика множеств); обход продолжается только через
// узлы, помеченные на этом вызове, поэтому повторный каскад от того же
// узла — no-op. Join-узел, зависящий от упавшей и живой ветки,
// пропускается как только упала любая зависимость: с частичным набором
// входов он выполниться не может.
func CascadeSkip(q *ExecutionQueue, failedID string) []string {
	var skipped []string

	queue := append([]string(nil), q.wf.Nodes[failedID].Dependents...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if q.Status(id).IsTerminal() {
			continue
		}

		q.MarkSkipped(id)
		skipped = append(skipped, id)
		queue = append(queue, q.wf.Nodes[id].Dependents...)
	}

	return skipped
}
