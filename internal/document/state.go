package document

// State is a step of the document capture workflow.
type State int

const (
	Idle State = iota
	AwaitingFrontCapture
	AwaitingBackDecision
	AwaitingBackCapture
	EvaluatingFront
	CreatingInstance
	UploadingFront
	EvaluatingBack
	UploadingBack
	FetchingResult
	Succeeded
	Failed
	Canceled
)

var stateNames = [...]string{
	Idle:                 "idle",
	AwaitingFrontCapture: "awaiting_front_capture",
	AwaitingBackDecision: "awaiting_back_decision",
	AwaitingBackCapture:  "awaiting_back_capture",
	EvaluatingFront:      "evaluating_front",
	CreatingInstance:     "creating_instance",
	UploadingFront:       "uploading_front",
	EvaluatingBack:       "evaluating_back",
	UploadingBack:        "uploading_back",
	FetchingResult:       "fetching_result",
	Succeeded:            "succeeded",
	Failed:               "failed",
	Canceled:             "canceled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the workflow has finished.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Canceled
}
