package registry

import (
	"fmt"
	"path/filepath"
	"plugin"

	"go.uber.org/zap"
)

// Exported symbol names a handler plugin must provide, matching the
// attribute names original_source/kre-py/src/main.py's load_handler looks
// up on the dynamically imported module.
const (
	symbolDefaultHandler = "DefaultHandler"
	symbolCustomHandlers = "CustomHandlers"
	symbolInit           = "Init"
)

// Load opens the plugin at basePath/handlerPath (handler_path resolved
// against base_path, matching os.path.join(config.base_path,
// config.handler_path) in load_handler) and builds a Registry from its
// exported symbols. DefaultHandler is required; CustomHandlers and Init are
// optional.
func Load(basePath, handlerPath string) (*Registry, error) {
	full := filepath.Join(basePath, handlerPath)

	p, err := plugin.Open(full)
	if err != nil {
		return nil, fmt.Errorf("registry: open plugin %s: %w", full, err)
	}

	reg := &Registry{}

	defaultSym, err := p.Lookup(symbolDefaultHandler)
	if err != nil {
		return nil, fmt.Errorf("registry: plugin %s missing required symbol %s: %w", full, symbolDefaultHandler, err)
	}
	defaultHandler, ok := defaultSym.(*Handler)
	if !ok {
		return nil, fmt.Errorf("registry: plugin %s symbol %s has unexpected type %T", full, symbolDefaultHandler, defaultSym)
	}
	reg.Default = *defaultHandler

	if customSym, err := p.Lookup(symbolCustomHandlers); err == nil {
		custom, ok := customSym.(*map[string]Handler)
		if !ok {
			return nil, fmt.Errorf("registry: plugin %s symbol %s has unexpected type %T", full, symbolCustomHandlers, customSym)
		}
		reg.Custom = *custom
	}

	if initSym, err := p.Lookup(symbolInit); err == nil {
		initFn, ok := initSym.(*Initializer)
		if !ok {
			return nil, fmt.Errorf("registry: plugin %s symbol %s has unexpected type %T", full, symbolInit, initSym)
		}
		reg.Init = *initFn
	}

	return reg, nil
}

// LoadFatal is Load followed by a zap.Fatal log-and-exit on failure, matching
// load_handler's "log the traceback, sys.exit(1)" fatal-configuration-error
// behavior.
func LoadFatal(basePath, handlerPath string, logger *zap.Logger) *Registry {
	logger.Info("loading handler plugin", zap.String("handler_path", handlerPath))

	reg, err := Load(basePath, handlerPath)
	if err != nil {
		logger.Fatal("failed to load handler plugin", zap.String("handler_path", handlerPath), zap.Error(err))
	}

	logger.Info("handler plugin loaded", zap.String("handler_path", handlerPath))
	return reg
}
