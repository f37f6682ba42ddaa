package domain

// SendCommand is a request from a viewer to post into a thread.
type SendCommand struct {
	Viewer Viewer
	Thread ThreadRef
	Body   string
}

// TransitionCommand is a request to check a subject in or out.
type TransitionCommand struct {
	Viewer    Viewer
	SubjectID string `validate:"required"`
	Action    Action `validate:"required,oneof=check-in check-out"`
}
