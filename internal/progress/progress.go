// Package progress holds the pure transitions over a plan's day tasks.
package progress

import (
	"time"

	"capillaire/internal/planner"
)

const day = 24 * time.Hour

// ToggleTask returns a copy of plan with the completion flag of the task for
// day d flipped. A day the plan does not contain leaves it unchanged.
func ToggleTask(plan planner.Plan, d int) planner.Plan {
	out := plan.Clone()
	for i := range out.Tasks {
		if out.Tasks[i].Day == d {
			out.Tasks[i].Completed = !out.Tasks[i].Completed
			return out
		}
	}
	return out
}

// CompletedCount is the number of completed tasks.
func CompletedCount(plan planner.Plan) int {
	n := 0
	for _, t := range plan.Tasks {
		if t.Completed {
			n++
		}
	}
	return n
}

// ProgressPercent is completed/30*100. The denominator is fixed, so short
// plans under-report.
func ProgressPercent(plan planner.Plan) float64 {
	return float64(CompletedCount(plan)) / planner.TotalDays * 100
}

// CurrentDay is the 1-based day of the plan at now, clamped to [1, 30].
func CurrentDay(plan planner.Plan, now time.Time) int {
	elapsed := now.Sub(plan.CreatedAt)
	if elapsed < 0 {
		return 1
	}
	d := int(elapsed/day) + 1
	if d > planner.TotalDays {
		return planner.TotalDays
	}
	return d
}

// TodayTask is the task for CurrentDay, if the plan has one.
func TodayTask(plan planner.Plan, now time.Time) (planner.DayTask, bool) {
	return plan.Task(min(CurrentDay(plan, now), planner.TotalDays))
}
