package types

// InputType defines the type of control input sent to a running executor.
type InputType string

const (
	InputTypeCancel   InputType = "cancel"    // InputTypeCancel stops the run at the next boundary.
	InputTypePause    InputType = "pause"     // InputTypePause suspends the loop at the next boundary.
	InputTypeResume   InputType = "resume"    // InputTypeResume releases a paused loop.
	InputTypeFollowUp InputType = "follow_up" // InputTypeFollowUp appends a new task to the same lineage.
	InputTypeApproval InputType = "approval"  // InputTypeApproval answers a pending approval request.
)

// Input represents a control message for an executor.
type Input struct {
	// Metadata holds optional additional information about the input.
	Metadata map[string]interface{}

	// Content is the follow-up task text.
	// Only populated when Type is InputTypeFollowUp.
	Content string

	// ApprovalID identifies the request being answered.
	// Only populated when Type is InputTypeApproval.
	ApprovalID string

	// Type indicates the kind of input.
	Type InputType

	// Approved is the human decision for an approval input.
	Approved bool
}

// NewCancelInput creates a new cancellation input.
func NewCancelInput() *Input {
	return &Input{Type: InputTypeCancel, Metadata: make(map[string]interface{})}
}

// NewPauseInput creates a pause input.
func NewPauseInput() *Input {
	return &Input{Type: InputTypePause, Metadata: make(map[string]interface{})}
}

// NewResumeInput creates a resume input.
func NewResumeInput() *Input {
	return &Input{Type: InputTypeResume, Metadata: make(map[string]interface{})}
}

// NewFollowUpInput creates a follow-up task input.
func NewFollowUpInput(task string) *Input {
	return &Input{Type: InputTypeFollowUp, Content: task, Metadata: make(map[string]interface{})}
}

// NewApprovalInput creates an approval answer.
func NewApprovalInput(approvalID string, approved bool) *Input {
	return &Input{
		Type:       InputTypeApproval,
		ApprovalID: approvalID,
		Approved:   approved,
		Metadata:   make(map[string]interface{}),
	}
}
