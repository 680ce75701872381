package validation

import (
	"fmt"

	"github.com/rendis/flowchart/pkg/schema"
)

// checkReachability walks the step flow from Start (BFS over next/yes/no
// edges) and warns about steps no path can enter. Loops are legal in a
// flowchart, so cycles are not reported.
func checkReachability(steps []schema.Step) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if len(steps) == 0 {
		return result
	}

	successors := func(i int) []int {
		next := i + 1
		step := steps[i]
		if step.Type != schema.StepTypeCondition {
			if next < len(steps) {
				return []int{next}
			}
			return nil
		}
		var out []int
		for _, target := range []string{step.YesPath, step.NoPath} {
			if target == "" {
				if next < len(steps) {
					out = append(out, next)
				}
				continue
			}
			if idx, ok := stepTarget(target, len(steps)); ok && idx >= 0 {
				out = append(out, idx)
			}
		}
		return out
	}

	reachable := make([]bool, len(steps))
	reachable[0] = true
	queue := []int{0}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, succ := range successors(node) {
			if !reachable[succ] {
				reachable[succ] = true
				queue = append(queue, succ)
			}
		}
	}

	for i, ok := range reachable {
		if !ok {
			result.AddWarning(fmt.Sprintf("steps[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("step%d is unreachable from Start", i))
		}
	}

	return result
}
