package evaluator

import "github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"

// Satisfied applies a policy to a required/actual pair. It serves both a
// node's own checks and its children.
func Satisfied(policy types.EvalPolicy, required, actual int) bool {
	switch policy.OrDefault() {
	case types.PolicyAll:
		return actual == required
	default:
		return actual > 0
	}
}
