package capi

// Callbacks invoked by the engine. The engine chooses the calling thread;
// pointers passed in are valid only until the callback returns.
type (
	// ChangeCallback receives a transient change-set pointer.
	ChangeCallback func(changes Ptr)

	// AsyncOpenCallback receives a thread-safe realm reference or an error.
	AsyncOpenCallback func(ref Ptr, err error)

	// ProgressCallback receives transfer progress for an async open.
	ProgressCallback func(transferred, transferable uint64)

	// UserCallback receives a logged-in user or an error.
	UserCallback func(user Ptr, err error)

	// ErrorCallback receives nil on success.
	ErrorCallback func(err error)

	// ConnectionStateCallback receives sync session state transitions.
	ConnectionStateCallback func(old, current ConnectionState)
)

// Scheduler lets the engine re-enter the execution context a realm was
// opened on. Notify may be called from any engine thread; the scheduler
// must eventually call PerformWork(work) on its own context.
type Scheduler interface {
	Notify(work Ptr)
	CanDeliverNotifications() bool
}

// Lifecycle covers the generic resource functions every native pointer
// supports.
type Lifecycle interface {
	// Release frees a native resource. Releasing twice is undefined.
	Release(p Ptr)
	// Clone creates a new, independently owned pointer to the same resource.
	Clone(p Ptr) (Ptr, error)
	// Equals reports whether two pointers refer to the same resource.
	Equals(a, b Ptr) bool
}

// Core is the storage-facing part of the C ABI.
type Core interface {
	Lifecycle

	Memory() Memory
	Allocator() Allocator

	Open(cfg *Config) (Ptr, error)
	Close(realm Ptr) error
	IsClosed(realm Ptr) bool
	DeleteFiles(path string) (bool, error)
	PerformWork(work Ptr)

	BeginWrite(realm Ptr) error
	Commit(realm Ptr) error
	CancelWrite(realm Ptr) error
	IsWriting(realm Ptr) bool

	FindClass(realm Ptr, name string) (ClassInfo, bool, error)
	ClassProperties(realm Ptr, class ClassKey) ([]PropertyInfo, error)

	ObjectCreate(realm Ptr, class ClassKey) (Ptr, error)
	// ObjectCreateWithPrimaryKey reads the key from a tagged value at pk.
	ObjectCreateWithPrimaryKey(realm Ptr, class ClassKey, pk uint32) (Ptr, error)
	ObjectFind(realm Ptr, class ClassKey, pk uint32) (Ptr, bool, error)
	ObjectGet(realm Ptr, class ClassKey, key ObjKey) (Ptr, error)
	ObjectInfo(obj Ptr) (ClassKey, ObjKey, error)
	ObjectIsValid(obj Ptr) bool
	// ObjectResolveIn returns a new pointer to the same object in realm.
	ObjectResolveIn(obj Ptr, realm Ptr) (Ptr, bool, error)
	ObjectDelete(obj Ptr) error
	// GetValue writes a tagged value to out. String and binary payloads
	// are allocated with Allocator() and owned by the caller.
	GetValue(obj Ptr, prop PropKey, out uint32) error
	SetValue(obj Ptr, prop PropKey, in uint32, isDefault bool) error
	ObjectAddNotificationCallback(obj Ptr, cb ChangeCallback) (Ptr, error)

	// Query evaluates query against class. args points at nargs query
	// argument structs.
	Query(realm Ptr, class ClassKey, query string, args uint32, nargs int) (Ptr, error)
	ResultsCount(res Ptr) (int, error)
	ResultsGet(res Ptr, index int) (Ptr, error)
	ResultsAddNotificationCallback(res Ptr, cb ChangeCallback) (Ptr, error)

	OpenAsync(cfg *Config, cb AsyncOpenCallback) (Ptr, error)
	AsyncOpenTaskCancel(task Ptr)
	AsyncOpenTaskRegisterProgress(task Ptr, cb ProgressCallback) (Ptr, error)
	ResolveThreadSafeReference(ref Ptr, sched Scheduler) (Ptr, error)
}

// Changes reads change-set pointers delivered to notification callbacks.
type Changes interface {
	CollectionChangeCounts(changes Ptr) (ChangeCounts, error)
	CollectionChanges(changes Ptr, out IndexBuffers) (ChangeCounts, error)
	CollectionRangeCounts(changes Ptr) (ChangeCounts, error)
	CollectionRanges(changes Ptr, out RangeBuffers) (ChangeCounts, error)

	ObjectChangesIsDeleted(changes Ptr) (bool, error)
	ObjectChangesModifiedCount(changes Ptr) (int, error)
	ObjectChangesModified(changes Ptr, out []PropKey) (int, error)
}

// Apps covers app users and sync sessions.
type Apps interface {
	AppGet(id string) (Ptr, error)
	AppLogIn(app Ptr, creds Credentials, cb UserCallback) error
	UserIdentity(user Ptr) (string, error)
	SyncSession(realm Ptr) (Ptr, bool, error)
	SessionWaitForUpload(session Ptr, cb ErrorCallback) error
	SessionRegisterConnectionState(session Ptr, cb ConnectionStateCallback) (Ptr, error)
}

// Engine is the full native surface the binding consumes.
type Engine interface {
	Core
	Changes
	Apps
}
