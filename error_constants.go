package stacktheory

const (
	ErrorCodeDuplicateID         = "stack.duplicate_id"
	ErrorCodeCyclicDependency    = "stack.cyclic_dependency"
	ErrorCodeUnresolvedReference = "stack.unresolved_reference"
	ErrorCodeDependencyFailed    = "stack.dependency_failed"
	ErrorCodeMissingConfig       = "stack.missing_config"
	ErrorCodeValidationFailed    = "stack.validation_failed"
)

const (
	reasonNodeNotDeclared = "node is not declared"
	reasonNodeNotPlanned  = "node has not been planned yet"
	reasonOutputMissing   = "output is not available"
)
