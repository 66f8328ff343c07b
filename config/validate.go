package config

import (
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/errors"
)

var primaryKeyTypes = map[capi.PropertyType]bool{
	capi.PropertyInt:      true,
	capi.PropertyString:   true,
	capi.PropertyObjectID: true,
	capi.PropertyUUID:     true,
}

func invalid(path []string, detail string, args ...any) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Path(path...).
		Detail(detail, args...).
		Build()
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Path == "" && !c.InMemory {
		return invalid([]string{"path"}, "path is required unless in_memory is set")
	}
	switch c.Persistence {
	case PersistenceMemory, PersistenceSQLite:
	default:
		return invalid([]string{"persistence"}, "unknown persistence %q", c.Persistence)
	}
	switch c.Memory {
	case "", MemoryHeap, MemoryWasm:
	default:
		return invalid([]string{"memory"}, "unknown memory backend %q", c.Memory)
	}
	if c.Persistence == PersistenceSQLite && c.InMemory {
		return invalid([]string{"persistence"}, "sqlite persistence cannot be in_memory")
	}

	classes := make(map[string]bool, len(c.Schema))
	for _, cl := range c.Schema {
		if cl.Name == "" {
			return invalid([]string{"schema"}, "class name is required")
		}
		if classes[cl.Name] {
			return invalid([]string{"schema", cl.Name}, "duplicate class")
		}
		classes[cl.Name] = true
	}
	for _, cl := range c.Schema {
		if err := validateClass(cl, classes); err != nil {
			return err
		}
	}

	if c.Sync != nil && c.Sync.AppID == "" {
		return invalid([]string{"sync", "app_id"}, "app_id is required")
	}
	return c.Log.validate()
}

func validateClass(cl Class, classes map[string]bool) error {
	seen := make(map[string]bool, len(cl.Properties))
	for _, p := range cl.Properties {
		path := []string{"schema", cl.Name, p.Name}
		if p.Name == "" {
			return invalid([]string{"schema", cl.Name}, "property name is required")
		}
		if seen[p.Name] {
			return invalid(path, "duplicate property")
		}
		seen[p.Name] = true

		typ, ok := capi.ParsePropertyType(p.Type)
		if !ok {
			return invalid(path, "unknown property type %q", p.Type)
		}
		switch typ {
		case capi.PropertyDecimal, capi.PropertyMixed:
			return errors.New(errors.PhaseConfig, errors.KindUnsupportedType).
				Path(path...).
				NativeType(typ.String()).
				Detail("property type is not supported by this binding").
				Build()
		case capi.PropertyObject:
			if p.Link == "" {
				return invalid(path, "object property needs a link target")
			}
			if !classes[p.Link] {
				return invalid(path, "link target %q is not declared", p.Link)
			}
		default:
			if p.Link != "" {
				return invalid(path, "only object properties have a link target")
			}
		}

		if p.Name == cl.PrimaryKey {
			if !primaryKeyTypes[typ] {
				return invalid(path, "%s cannot be a primary key", typ)
			}
			if p.Optional {
				return invalid(path, "primary key cannot be optional")
			}
		}
	}
	if cl.PrimaryKey != "" && !seen[cl.PrimaryKey] {
		return invalid([]string{"schema", cl.Name}, "primary key %q is not a property", cl.PrimaryKey)
	}
	if cl.Embedded && cl.PrimaryKey != "" {
		return invalid([]string{"schema", cl.Name}, "embedded classes have no primary key")
	}
	return nil
}
