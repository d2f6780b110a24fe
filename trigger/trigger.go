// Package trigger provides the five pure predicate constructors the
// orchestrator loop evaluates to decide when a stage fires. Triggers must
// be side-effect free; the loop may evaluate one multiple times per pass.
package trigger

import "github.com/agoraflow/agora/blackboard"

// Predicate is a pure function of blackboard state.
type Predicate func(*blackboard.Blackboard) bool

// Always fires unconditionally — used for a protocol's first stage.
func Always() Predicate {
	return func(*blackboard.Blackboard) bool { return true }
}

// After fires once the named stage has written at least one entry.
func After(stage string) Predicate {
	return func(bb *blackboard.Blackboard) bool {
		_, ok := bb.StagesCompleted()[stage]
		return ok
	}
}

// AfterAll fires once every named stage has completed.
func AfterAll(stages ...string) Predicate {
	return func(bb *blackboard.Blackboard) bool {
		completed := bb.StagesCompleted()
		for _, s := range stages {
			if _, ok := completed[s]; !ok {
				return false
			}
		}
		return true
	}
}

// AfterAny fires once at least one named stage has completed.
func AfterAny(stages ...string) Predicate {
	return func(bb *blackboard.Blackboard) bool {
		completed := bb.StagesCompleted()
		for _, s := range stages {
			if _, ok := completed[s]; ok {
				return true
			}
		}
		return false
	}
}

// OnConflict fires when the blackboard reports conflicting writes on topic.
func OnConflict(topic string) Predicate {
	return func(bb *blackboard.Blackboard) bool {
		return bb.Conflicts(topic) != nil
	}
}
