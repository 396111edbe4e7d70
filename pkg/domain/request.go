package domain

import "time"

// In-source directives recognised by the request builder.
const (
	// SaveMarker: everything above this line is executed once and cached.
	SaveMarker = "#$save"
	// EndMarker: nothing from this line on is sent to the interpreter.
	EndMarker = "#$end"
	// RestartMarker: restart the interpreter before every run.
	RestartMarker = "#$restart"
)

// EvaluationRequest is a single "evaluate this text" command.
// It must not be mutated after it is handed to the interpreter.
type EvaluationRequest struct {
	Code     string `json:"evalCode"`
	FilePath string `json:"filePath"`

	// SavedCode is the prefix above a save marker. When set, the backend
	// runs it in a fresh namespace and snapshots the result.
	SavedCode string `json:"savedCode"`

	UsePreviousVariables bool `json:"usePreviousVariables"`
	// UseSavePoint resumes from the snapshot taken after SavedCode ran.
	UseSavePoint   bool     `json:"useSavePoint"`
	ShowGlobalVars bool     `json:"showGlobalVars"`
	DefaultImports []string `json:"defaultImports,omitempty"`

	RestartMode  bool          `json:"-"`
	RestartDelay time.Duration `json:"-"`
}
