package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldScriptID identifies the script being structured.
	FieldScriptID = "script_id"
	// FieldProjectID identifies the owning project.
	FieldProjectID = "project_id"
	// FieldStage names the pipeline stage (metadata, characters, scenes, shots).
	FieldStage = "stage"
	// FieldSubTask identifies a sub-task ({type}_{entity}).
	FieldSubTask = "sub_task"
	// FieldEntity names the character or scene a sub-task covers.
	FieldEntity = "entity"
	// FieldEventType tags notable lifecycle events for log filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries operator guidance attached to failures.
	FieldErrorHint = "error_hint"
	// FieldAttempt is the 1-based retry attempt number.
	FieldAttempt = "attempt"
	// FieldCorrelationID carries the per-stage request correlation identifier.
	FieldCorrelationID = "correlation_id"
)
