// Package convert translates public Go values to and from tagged values.
//
// Conversion runs in two stages. A Public stage maps the API type onto one
// of the few storage types the engine accepts (every integer width becomes
// int64, time.Time becomes value.Timestamp); a Storage stage maps the
// storage type onto a value.Value. Compose joins them:
//
//	c := convert.Compose[int8, int64](convert.Signed[int8]{}, convert.IntStorage{})
//	v, _ := c.ToValue(42)       // value.Int(42)
//	_, err := c.FromValue(value.Int(300)) // overflow error, no wraparound
//
// A Registry holds the converters for one conversion context and is
// created with NewRegistry; there is no global registry. Static callers
// use Lookup, ToValueAs and FromValueAs. Registry.ToValue dispatches on the
// runtime type and is meant for query arguments and reflected struct
// fields; an unregistered type is an UnsupportedType error.
//
// ObjectConverter adds object references: managed objects convert to links
// when they belong to the target storage generation (StaleObject
// otherwise), and unmanaged models are imported recursively into an
// ImportTarget under an UpdatePolicy.
package convert
