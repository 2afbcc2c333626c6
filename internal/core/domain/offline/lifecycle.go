package offline

// WorkerState is the lifecycle state of the cache controller.
type WorkerState string

const (
	StateParsed     WorkerState = "parsed"
	StateInstalling WorkerState = "installing"
	StateInstalled  WorkerState = "installed"
	StateActivating WorkerState = "activating"
	StateActivated  WorkerState = "activated"
	StateRedundant  WorkerState = "redundant"
)

// WorkerEvent moves the lifecycle forward.
type WorkerEvent string

const (
	EventInstall   WorkerEvent = "INSTALL"
	EventInstalled WorkerEvent = "INSTALLED"
	EventActivate  WorkerEvent = "ACTIVATE"
	EventActivated WorkerEvent = "ACTIVATED"
	EventFail      WorkerEvent = "FAIL"
)

var transitions = map[WorkerState]map[WorkerEvent]WorkerState{
	StateParsed:     {EventInstall: StateInstalling, EventFail: StateRedundant},
	StateInstalling: {EventInstalled: StateInstalled, EventFail: StateRedundant},
	StateInstalled:  {EventActivate: StateActivating, EventFail: StateRedundant},
	StateActivating: {EventActivated: StateActivated, EventFail: StateRedundant},
	// An active worker reinstalls when a new version is rolled out in place.
	StateActivated: {EventInstall: StateInstalling},
	StateRedundant: {EventInstall: StateInstalling},
}

// Next returns the state reached from s on e, and whether e is allowed in s.
func Next(s WorkerState, e WorkerEvent) (WorkerState, bool) {
	to, ok := transitions[s][e]
	return to, ok
}

// Message is posted from the controller to connected clients.
type Message struct {
	Type string `json:"type"`
}

const (
	MessageSyncRequired = "SYNC_REQUIRED"
	SyncTagUserData     = "sync-user-data"
)
