package saga

// successSuffix and failureSuffix are appended to a step's base task name
// to derive the reply task names a remote step handler publishes to.
const (
	successSuffix = ".response.success"
	failureSuffix = ".response.failure"
)

// SuccessTaskName derives the reply task name a step handler uses to
// report success for the given base task name.
func SuccessTaskName(baseTaskName string) string {
	return baseTaskName + successSuffix
}

// FailureTaskName derives the reply task name a step handler uses to
// report failure for the given base task name.
func FailureTaskName(baseTaskName string) string {
	return baseTaskName + failureSuffix
}
