package notify

// WorkflowID names a workflow configured in the notification service.
// The set is closed: add a constant and list it in Workflows to extend it.
type WorkflowID string

const (
	// WorkflowSignUpApproved notifies a user that their sign-up was approved.
	WorkflowSignUpApproved WorkflowID = "sign-up-approved"
)

// Workflows returns every known workflow identifier.
func Workflows() []WorkflowID {
	return []WorkflowID{WorkflowSignUpApproved}
}

// Valid reports whether w is a known workflow identifier.
func (w WorkflowID) Valid() bool {
	for _, known := range Workflows() {
		if w == known {
			return true
		}
	}
	return false
}

func (w WorkflowID) String() string { return string(w) }
