package capi

// Ptr is an opaque native resource address. Zero is the null resource.
type Ptr uintptr

// ClassKey identifies a class (table) inside one schema.
type ClassKey uint32

// PropKey identifies a property (column) of a class.
type PropKey int64

// ObjKey identifies an object inside its class.
type ObjKey int64

// PropertyType mirrors the engine's property type enumeration.
type PropertyType int32

const (
	PropertyInt      PropertyType = 0
	PropertyBool     PropertyType = 1
	PropertyString   PropertyType = 2
	PropertyBinary   PropertyType = 4
	PropertyMixed    PropertyType = 6
	PropertyDate     PropertyType = 8
	PropertyFloat    PropertyType = 9
	PropertyDouble   PropertyType = 10
	PropertyDecimal  PropertyType = 11
	PropertyObject   PropertyType = 12
	PropertyObjectID PropertyType = 15
	PropertyUUID     PropertyType = 17
)

var propertyTypeNames = map[PropertyType]string{
	PropertyInt:      "int",
	PropertyBool:     "bool",
	PropertyString:   "string",
	PropertyBinary:   "binary",
	PropertyMixed:    "mixed",
	PropertyDate:     "timestamp",
	PropertyFloat:    "float",
	PropertyDouble:   "double",
	PropertyDecimal:  "decimal128",
	PropertyObject:   "object",
	PropertyObjectID: "object_id",
	PropertyUUID:     "uuid",
}

func (t PropertyType) String() string {
	if s, ok := propertyTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParsePropertyType resolves a property type by its schema name.
func ParsePropertyType(name string) (PropertyType, bool) {
	for t, s := range propertyTypeNames {
		if s == name {
			return t, true
		}
	}
	return 0, false
}

// CollectionType describes whether a property holds a single value.
// Only CollectionNone is bound by this layer.
type CollectionType int32

const (
	CollectionNone       CollectionType = 0
	CollectionList       CollectionType = 1
	CollectionSet        CollectionType = 2
	CollectionDictionary CollectionType = 4
)

// PropertyFlags carries per-property schema flags.
type PropertyFlags int32

const (
	PropertyNullable PropertyFlags = 1
	PropertyPrimary  PropertyFlags = 2
	PropertyIndexed  PropertyFlags = 4
)

// ClassFlags carries per-class schema flags.
type ClassFlags int32

const (
	ClassNormal     ClassFlags = 0
	ClassEmbedded   ClassFlags = 1
	ClassAsymmetric ClassFlags = 2
)

// ClassInfo is the native class descriptor.
type ClassInfo struct {
	Name          string
	PrimaryKey    string
	NumProperties int
	Key           ClassKey
	Flags         ClassFlags
}

// PropertyInfo is the native property descriptor.
type PropertyInfo struct {
	Name       string
	LinkTarget string
	Key        PropKey
	Type       PropertyType
	Collection CollectionType
	Flags      PropertyFlags
}

// Nullable reports whether the property accepts null.
func (p PropertyInfo) Nullable() bool { return p.Flags&PropertyNullable != 0 }

// Primary reports whether the property is the class primary key.
func (p PropertyInfo) Primary() bool { return p.Flags&PropertyPrimary != 0 }

// ClassSchema pairs a class with its properties for schema declaration.
type ClassSchema struct {
	Class      ClassInfo
	Properties []PropertyInfo
}

// Query argument layout: {count u32 @0, is_list u8 @4, values ptr u32 @8}.
const (
	QueryArgSize      = 12
	QueryArgAlign     = 4
	QueryArgCountOff  = 0
	QueryArgIsListOff = 4
	QueryArgValuesOff = 8
)

// ChangeCounts are the per-category sizes reported by the engine.
// For the index form ModificationsAfter always equals Modifications.
type ChangeCounts struct {
	Deletions          int
	Insertions         int
	Modifications      int
	ModificationsAfter int
	Moves              int
	Cleared            bool
}

// Move is a single element move inside a collection.
type Move struct {
	From int
	To   int
}

// Range is a half-open index range [From, To).
type Range struct {
	From int
	To   int
}

// IndexBuffers are caller-sized output buffers for flat change indices.
// The engine writes at most len(buffer) entries into each.
type IndexBuffers struct {
	Deletions          []int
	Insertions         []int
	Modifications      []int
	ModificationsAfter []int
	Moves              []Move
}

// RangeBuffers are caller-sized output buffers for range-compressed changes.
type RangeBuffers struct {
	Deletions          []Range
	Insertions         []Range
	Modifications      []Range
	ModificationsAfter []Range
	Moves              []Move
}

// ConnectionState is a sync session connection state.
type ConnectionState int

const (
	ConnectionDisconnected ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	}
	return "unknown"
}

// Credentials identify a user for an app login.
type Credentials struct {
	Provider string
	Email    string
	Password string
}

// Config is the native open configuration.
type Config struct {
	Scheduler     Scheduler
	Path          string
	Persistence   string
	Schema        []ClassSchema
	SchemaVersion uint64
	SyncUser      Ptr
	InMemory      bool
}
