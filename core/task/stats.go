package task

// AverageScore averages the scores of the given tasks. Ungraded tasks count
// neither in the numerator nor in the denominator; the second return is false
// when no task is graded at all.
func AverageScore(tasks []Task) (float64, bool) {
	var sum, n int
	for _, t := range tasks {
		if t.Score == nil {
			continue
		}
		sum += *t.Score
		n++
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(n), true
}

// OnTimeRate is the fraction of tasks whose completion time (reviewedAt,
// falling back to completedAt) is on or before the deadline. Tasks with
// neither timestamp are excluded from the denominator; the second return is
// false when every task is excluded.
func OnTimeRate(tasks []Task) (float64, bool) {
	var onTime, n int
	for _, t := range tasks {
		done, ok := t.CompletionTime()
		if !ok {
			continue
		}
		if !done.After(t.Deadline) {
			onTime++
		}
		n++
	}
	if n == 0 {
		return 0, false
	}
	return float64(onTime) / float64(n), true
}

// ComputePerformance derives a student's track record from their tasks.
func ComputePerformance(tasks []Task) Performance {
	perf := Performance{TotalTasks: len(tasks)}
	for _, t := range tasks {
		if t.Status == StatusCompleted {
			perf.CompletedTasks++
		}
	}
	if perf.TotalTasks > 0 {
		perf.CompletionRate = float64(perf.CompletedTasks) / float64(perf.TotalTasks)
	}
	if avg, ok := AverageScore(tasks); ok {
		perf.AverageScore = &avg
	}
	if rate, ok := OnTimeRate(tasks); ok {
		perf.OnTimeRate = &rate
	}
	return perf
}
