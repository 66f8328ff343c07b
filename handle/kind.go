package handle

// Kind names the native resource a handle wraps.
type Kind uint8

const (
	KindRealm Kind = iota + 1
	KindObject
	KindResults
	KindToken
	KindChanges
	KindTask
	KindThreadSafeRef
	KindApp
	KindUser
	KindSession
)

var kindNames = map[Kind]string{
	KindRealm:         "realm",
	KindObject:        "object",
	KindResults:       "results",
	KindToken:         "notification token",
	KindChanges:       "changes",
	KindTask:          "async open task",
	KindThreadSafeRef: "thread safe reference",
	KindApp:           "app",
	KindUser:          "user",
	KindSession:       "sync session",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}
