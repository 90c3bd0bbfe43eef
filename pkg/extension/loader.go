package extension

import (
	"errors"
	goplugin "plugin"
)

// Loader resolves extension binaries into Extension implementations.
type Loader interface {
	Load(path string) (Extension, error)
}

// GoPluginLoader uses the Go standard library plugin mechanism to dynamically
// load modules.
type GoPluginLoader struct{}

// Load opens the shared object and searches for an `Extension` symbol
// implementing the Extension interface.
func (GoPluginLoader) Load(path string) (Extension, error) {
	if path == "" {
		return nil, errors.New("extension path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	symbol, err := so.Lookup("Extension")
	if err != nil {
		return nil, err
	}
	switch e := symbol.(type) {
	case Extension:
		return e, nil
	case *Extension:
		if e == nil {
			return nil, errors.New("extension symbol is nil")
		}
		return *e, nil
	case func() Extension:
		return e(), nil
	default:
		return nil, errors.New("extension symbol must implement extension.Extension")
	}
}
