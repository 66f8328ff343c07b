// Package config loads storage configuration from YAML.
//
// A configuration names the storage file, the persistence backend of the
// reference engine, the schema, optional sync settings and logging:
//
//	path: tasks.corebind
//	persistence: sqlite
//	memory: wasm
//	schema_version: 1
//	schema:
//	  - name: Task
//	    primary_key: id
//	    properties:
//	      - {name: id, type: object_id}
//	      - {name: title, type: string}
//	      - {name: owner, type: object, link: Person, optional: true}
//	log:
//	  level: debug
package config

import (
	"bytes"
	"os"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/errors"
)

// Persistence backends understood by the reference engine.
const (
	PersistenceMemory = "memory"
	PersistenceSQLite = "sqlite"
)

// Native memory backends.
const (
	MemoryHeap = "heap"
	MemoryWasm = "wasm"
)

// Config describes one storage instance.
type Config struct {
	Sync          *Sync   `yaml:"sync,omitempty"`
	Path          string  `yaml:"path"`
	Persistence   string  `yaml:"persistence"`
	Memory        string  `yaml:"memory,omitempty"`
	Schema        []Class `yaml:"schema"`
	Log           Log     `yaml:"log"`
	SchemaVersion uint64  `yaml:"schema_version"`
	InMemory      bool    `yaml:"in_memory,omitempty"`
}

// Class declares a schema class.
type Class struct {
	Name       string     `yaml:"name"`
	PrimaryKey string     `yaml:"primary_key,omitempty"`
	Properties []Property `yaml:"properties"`
	Embedded   bool       `yaml:"embedded,omitempty"`
}

// Property declares a class property.
type Property struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Link     string `yaml:"link,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
	Indexed  bool   `yaml:"indexed,omitempty"`
}

// Sync configures the app user a synced storage logs in as.
type Sync struct {
	AppID    string `yaml:"app_id"`
	Provider string `yaml:"provider"`
	Email    string `yaml:"email,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Default returns an in-memory configuration with an empty schema.
func Default() *Config {
	return &Config{
		Path:        "default.corebind",
		Persistence: PersistenceMemory,
		Log:         DefaultLog(),
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read config "+path)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown fields
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration atomically.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "encode config")
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindNative, err, "write config "+path)
	}
	return nil
}

// Class returns the named class declaration.
func (c *Config) Class(name string) (Class, bool) {
	for _, cl := range c.Schema {
		if cl.Name == name {
			return cl, true
		}
	}
	return Class{}, false
}

// Native converts the configuration to the engine's open descriptor.
// Class and property keys are left for the engine to assign.
func (c *Config) Native(sched capi.Scheduler) *capi.Config {
	out := &capi.Config{
		Scheduler:     sched,
		Path:          c.Path,
		Persistence:   c.Persistence,
		SchemaVersion: c.SchemaVersion,
		InMemory:      c.InMemory,
		Schema:        make([]capi.ClassSchema, 0, len(c.Schema)),
	}
	for _, cl := range c.Schema {
		info := capi.ClassInfo{
			Name:          cl.Name,
			PrimaryKey:    cl.PrimaryKey,
			NumProperties: len(cl.Properties),
		}
		if cl.Embedded {
			info.Flags = capi.ClassEmbedded
		}
		props := make([]capi.PropertyInfo, 0, len(cl.Properties))
		for _, p := range cl.Properties {
			typ, _ := capi.ParsePropertyType(p.Type)
			pi := capi.PropertyInfo{Name: p.Name, Type: typ, LinkTarget: p.Link}
			if p.Optional || typ == capi.PropertyObject {
				pi.Flags |= capi.PropertyNullable
			}
			if p.Indexed {
				pi.Flags |= capi.PropertyIndexed
			}
			if p.Name == cl.PrimaryKey {
				pi.Flags |= capi.PropertyPrimary
			}
			props = append(props, pi)
		}
		out.Schema = append(out.Schema, capi.ClassSchema{Class: info, Properties: props})
	}
	return out
}
