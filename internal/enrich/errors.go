package enrich

import "fmt"

// Pipeline stages in execution order. Failure handling copies the stage onto
// the job row, so the values double as the job's error_stage vocabulary.
const (
	StageTagFetch      = "tag_fetch"
	StageLLMCall       = "llm_call"
	StageParse         = "parse"
	StageEntityResolve = "entity_resolve"
	StagePersist       = "persist"
)

const (
	CodeEmptyResponse      = "EMPTY_RESPONSE"
	CodeParseFailed        = "PARSE_FAILED"
	CodeLLMCallError       = "LLM_CALL_ERROR"
	CodeTagFetchError      = "TAG_FETCH_ERROR"
	CodeEntityResolveError = "ENTITY_RESOLVE_ERROR"
	CodePersistError       = "PERSIST_ERROR"
)

// StageError pins a failure to the stage that raised it plus a machine
// readable code. The job handler writes both onto the pipeline_job row.
type StageError struct {
	Stage string
	Code  string
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Code)
}

func (e *StageError) Unwrap() error { return e.Err }

func NewStageError(stage, code string, err error) *StageError {
	return &StageError{Stage: stage, Code: code, Err: err}
}

// AsStageError returns err as a *StageError, wrapping unknown errors under
// the given fallback stage and code so every pipeline failure stays staged.
func AsStageError(err error, fallbackStage, fallbackCode string) *StageError {
	if err == nil {
		return nil
	}
	if se, ok := err.(*StageError); ok {
		return se
	}
	return &StageError{Stage: fallbackStage, Code: fallbackCode, Err: err}
}
