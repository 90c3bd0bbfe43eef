package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type jobOutcomeCollector struct {
	mu       sync.Mutex
	outcomes map[string]uint64
}

var jobCollector = &jobOutcomeCollector{
	outcomes: make(map[string]uint64),
}

// ObservePlanJob counts one plan job reaching the given outcome. Outcomes are
// terminal pipeline states (ready, awaiting_confirmation, failed) plus the
// degraded recovery path.
func ObservePlanJob(outcome string) {
	jobCollector.mu.Lock()
	defer jobCollector.mu.Unlock()
	jobCollector.outcomes[outcome]++
}

func (c *jobOutcomeCollector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcomes := make([]string, 0, len(c.outcomes))
	for outcome := range c.outcomes {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)

	var builder strings.Builder
	builder.WriteString("# HELP karana_plan_jobs_total Total number of plan jobs that reached an outcome.\n")
	builder.WriteString("# TYPE karana_plan_jobs_total counter\n")
	for _, outcome := range outcomes {
		builder.WriteString(fmt.Sprintf("karana_plan_jobs_total{outcome=\"%s\"} %d\n",
			escape(outcome), c.outcomes[outcome]))
	}
	return builder.String()
}
