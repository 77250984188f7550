package orchestrator

// State is a step of the upload, pay and download cycle.
type State string

const (
	StateIdle            State = "idle"
	StateUploading       State = "uploading"
	StateUploadFailed    State = "upload_failed"
	StateCleaned         State = "cleaned"
	StatePaymentInFlight State = "payment_in_flight"
	StateVerifying       State = "verifying"
	StatePaymentFailed   State = "payment_failed"
	StateVerified        State = "verified"
	StateDownloaded      State = "downloaded"
)

// Event triggers a transition.
type Event string

const (
	EventSubmitUpload          Event = "submit_upload"
	EventCleanSucceeded        Event = "clean_succeeded"
	EventCleanFailed           Event = "clean_failed"
	EventInitiatePayment       Event = "initiate_payment"
	EventPaymentClosed         Event = "payment_closed"
	EventPaymentCallback       Event = "payment_callback"
	EventVerificationSucceeded Event = "verification_succeeded"
	EventVerificationFailed    Event = "verification_failed"
	EventDownload              Event = "download"
)

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventSubmitUpload: StateUploading,
	},
	StateUploading: {
		EventCleanSucceeded: StateCleaned,
		EventCleanFailed:    StateUploadFailed,
	},
	StateUploadFailed: {
		EventSubmitUpload: StateUploading,
	},
	StateCleaned: {
		EventInitiatePayment: StatePaymentInFlight,
	},
	StatePaymentInFlight: {
		EventPaymentCallback: StateVerifying,
		EventPaymentClosed:   StateCleaned,
	},
	StateVerifying: {
		EventVerificationSucceeded: StateVerified,
		EventVerificationFailed:    StatePaymentFailed,
	},
	StatePaymentFailed: {
		EventInitiatePayment: StatePaymentInFlight,
	},
	StateVerified: {
		EventDownload: StateDownloaded,
	},
	StateDownloaded: {
		EventSubmitUpload: StateUploading,
		EventDownload:     StateDownloaded,
	},
}

// next returns the state event leads to from s, if the table allows it.
func next(s State, e Event) (State, bool) {
	to, ok := transitions[s][e]
	return to, ok
}

// Allows reports whether e may fire in s.
func (s State) Allows(e Event) bool {
	_, ok := next(s, e)
	return ok
}

// Awaiting reports whether the session is waiting on a remote party and
// accepts no user input.
func (s State) Awaiting() bool {
	switch s {
	case StateUploading, StatePaymentInFlight, StateVerifying:
		return true
	}
	return false
}

// RemoteCallPending reports whether the server has a clean or verification
// request outstanding for the session.
func (s State) RemoteCallPending() bool {
	return s == StateUploading || s == StateVerifying
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}
