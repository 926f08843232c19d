package logger

import "github.com/calder/gantry/internal/models"

// Sink mirrors the executor's Logger interface so loggers can be combined
// without importing the executor package.
type Sink interface {
	LogRunStart(workflow *models.Workflow, event, runID string)
	LogJobStart(instance string)
	LogStepStart(instance string, step models.Step)
	LogStepResult(instance string, result models.StepResult)
	LogJobResult(result models.JobResult)
	LogSummary(result models.RunResult)
}

// MultiLogger fans every event out to multiple sinks.
type MultiLogger struct {
	sinks []Sink
}

// NewMultiLogger combines the given sinks; nil entries are dropped.
func NewMultiLogger(sinks ...Sink) *MultiLogger {
	ml := &MultiLogger{}
	for _, s := range sinks {
		if s != nil {
			ml.sinks = append(ml.sinks, s)
		}
	}
	return ml
}

func (ml *MultiLogger) LogRunStart(workflow *models.Workflow, event, runID string) {
	for _, s := range ml.sinks {
		s.LogRunStart(workflow, event, runID)
	}
}

func (ml *MultiLogger) LogJobStart(instance string) {
	for _, s := range ml.sinks {
		s.LogJobStart(instance)
	}
}

func (ml *MultiLogger) LogStepStart(instance string, step models.Step) {
	for _, s := range ml.sinks {
		s.LogStepStart(instance, step)
	}
}

func (ml *MultiLogger) LogStepResult(instance string, result models.StepResult) {
	for _, s := range ml.sinks {
		s.LogStepResult(instance, result)
	}
}

func (ml *MultiLogger) LogJobResult(result models.JobResult) {
	for _, s := range ml.sinks {
		s.LogJobResult(result)
	}
}

func (ml *MultiLogger) LogSummary(result models.RunResult) {
	for _, s := range ml.sinks {
		s.LogSummary(result)
	}
}
