package engine

import "github.com/msageha/autopilot/internal/model"

// loadPerCommand is the estimated load each in-flight command contributes.
const loadPerCommand = 25

// EstimateLoad approximates system load from the number of in-flight commands.
func EstimateLoad(active int) int {
	load := active * loadPerCommand
	if load > 100 {
		return 100
	}
	return load
}

// SelectCommands decides which of rule's commands to enqueue at level.
// maxLoad is max_cpu_usage; it only matters at smart level for rules with
// priority above 1.
func SelectCommands(rule model.PatternRule, level model.AutomationLevel, active, maxLoad int) []string {
	if len(rule.Commands) == 0 {
		return nil
	}
	switch level {
	case model.LevelMinimal:
		if rule.Priority == 0 {
			return []string{rule.Commands[0]}
		}
		return nil
	case model.LevelSmart:
		if rule.Priority <= 1 || EstimateLoad(active) < maxLoad {
			return append([]string(nil), rule.Commands...)
		}
		return nil
	case model.LevelFull:
		return append([]string(nil), rule.Commands...)
	default:
		return nil
	}
}
