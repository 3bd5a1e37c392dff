package planner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type rawPlan struct {
	Summary string    `json:"summary"`
	Tasks   []rawTask `json:"tasks"`
}

type rawTask struct {
	Day         int     `json:"day"`
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Recipe      *string `json:"recipe"`
}

// parsePlanResponse decodes content strictly, then retries on the first
// top-level object embedded in it.
func parsePlanResponse(content string) (rawPlan, error) {
	var raw rawPlan
	err := json.Unmarshal([]byte(content), &raw)
	if err == nil {
		return raw, nil
	}

	obj := extractFirstObject(content)
	if obj == "" {
		return rawPlan{}, fmt.Errorf("no JSON object in response: %w", err)
	}
	raw = rawPlan{}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return rawPlan{}, fmt.Errorf("failed to parse embedded object: %w", err)
	}
	return raw, nil
}

// extractFirstObject returns the first balanced {...} in s, ignoring braces
// inside JSON strings. It returns "" when there is none.
func extractFirstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// normalizeTasks keeps the first task for each day in 1..TotalDays, sorted
// by day, with completion cleared. A task without a day takes its position
// in the list when no other task claims that day. It also reports how many
// tasks were dropped.
func normalizeTasks(raw []rawTask) ([]DayTask, int) {
	seen := make(map[int]struct{}, len(raw))
	tasks := make([]DayTask, 0, len(raw))
	keep := func(day int, r rawTask) bool {
		if day < 1 || day > TotalDays {
			return false
		}
		if _, dup := seen[day]; dup {
			return false
		}
		seen[day] = struct{}{}

		var recipe *string
		if r.Recipe != nil && strings.TrimSpace(*r.Recipe) != "" {
			v := strings.TrimSpace(*r.Recipe)
			recipe = &v
		}
		tasks = append(tasks, DayTask{
			Day:         day,
			Category:    ParseCategory(r.Category),
			Title:       strings.TrimSpace(r.Title),
			Description: strings.TrimSpace(r.Description),
			Recipe:      recipe,
			Completed:   false,
		})
		return true
	}

	dropped := 0
	for _, r := range raw {
		if r.Day != 0 && !keep(r.Day, r) {
			dropped++
		}
	}
	for i, r := range raw {
		if r.Day == 0 && !keep(i+1, r) {
			dropped++
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Day < tasks[j].Day })
	return tasks, dropped
}
