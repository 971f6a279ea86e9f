package logfields

import "go.uber.org/zap"

func Actor(val string) zap.Field {
	return zap.String("ci.actor", val)
}

func Conclusion(val string) zap.Field {
	return zap.String("ci.conclusion", val)
}

func Workflow(val string) zap.Field {
	return zap.String("ci.workflow", val)
}

func WorkflowRunID(val int64) zap.Field {
	return zap.Int64("ci.workflow_run_id", val)
}

// Status is the terminal status of a pipeline run.
func Status(val string) zap.Field {
	return zap.String("status", val)
}
