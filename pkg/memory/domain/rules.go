package domain

import (
	"strings"

	"github.com/brunovlucena/homelab-sub000/pkg/memory"
)

// rule maps a keyword set to the goal it implies for one agent type. The
// first matching rule wins; a request matching no rule gets the generic
// processing goal.
type rule struct {
	keywords    []string
	goal        memory.Goal
	constraints []memory.Constraint
	steps       []string
}

// scopeConstraint is enforced on every schema regardless of agent type.
var scopeConstraint = memory.Constraint{
	Description: "Stay within the authorized operational scope",
	Hard:        true,
	Category:    "authorization",
}

// ruleTables keys rule sets on agent_type.
var ruleTables = map[string][]rule{
	"sre": {
		{
			keywords: []string{"attack", "exploit", "vulnerability", "pentest"},
			goal: memory.Goal{
				Description: "Run safety tests against the reported exposure without impacting production",
				Priority:    1,
			},
			constraints: []memory.Constraint{
				{Description: "Never run destructive payloads", Hard: true, Category: "safety"},
			},
			steps: []string{"scope_assessment", "safety_test", "report"},
		},
		{
			keywords: []string{"alert", "remediate", "incident", "firing"},
			goal: memory.Goal{
				Description: "Remediate the firing alert and verify the fix",
				Priority:    1,
			},
			steps: []string{"extract", "select", "execute", "verify", "record"},
		},
		{
			keywords: []string{"monitor", "health", "anomaly", "observe"},
			goal: memory.Goal{
				Description: "Monitor infrastructure health and respond to anomalies",
				Priority:    2,
			},
			steps: []string{"observe", "assess", "act"},
		},
	},
	"devops": {
		{
			keywords: []string{"deploy", "rollout", "release"},
			goal: memory.Goal{
				Description: "Complete the requested rollout with health verification",
				Priority:    2,
			},
			steps: []string{"plan", "apply", "verify"},
		},
	},
}

// ruleBasedAnalysis is the deterministic fallback Initializer: a small
// lookup table per agent type, with a generic goal when nothing matches.
func ruleBasedAnalysis(agentType, request string) *Analysis {
	lower := strings.ToLower(request)

	for _, r := range ruleTables[agentType] {
		if len(r.keywords) == 0 || containsAny(lower, r.keywords) {
			goal := r.goal
			goal.Status = memory.GoalPending
			return &Analysis{
				Goals:       []memory.Goal{goal},
				Constraints: append([]memory.Constraint{scopeConstraint}, r.constraints...),
				Steps:       r.steps,
			}
		}
	}

	return &Analysis{
		Goals: []memory.Goal{{
			Description: "Process request: " + prefix(request, requestPrefixLen),
			Priority:    3,
			Status:      memory.GoalPending,
		}},
		Constraints: []memory.Constraint{scopeConstraint},
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
