package tools

import (
	"fmt"
	"log"
	"os"

	models "schedbot/models"
)

// Func is the implementation signature for a registered tool. Expected
// failures (validation, not-found) come back inside the ToolResult; a
// non-nil error means the tool itself blew up.
type Func func(args map[string]interface{}) (models.ToolResult, error)

// Registry holds the fixed set of callable tools declared to the model. The
// set is assembled once at startup; Invoke never panics out and always
// returns a well-formed ToolResult.
type Registry struct {
	logger *log.Logger
	names  []string
	decls  map[string]models.FunctionDeclaration
	impls  map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{
		logger: log.New(os.Stdout, "[tools] ", log.LstdFlags),
		decls:  make(map[string]models.FunctionDeclaration),
		impls:  make(map[string]Func),
	}
}

// Register adds a tool declaration and its implementation. Re-registering a
// name replaces the implementation but keeps the original declaration order.
func (r *Registry) Register(decl models.FunctionDeclaration, impl Func) {
	if _, exists := r.decls[decl.Name]; !exists {
		r.names = append(r.names, decl.Name)
	}
	r.decls[decl.Name] = decl
	r.impls[decl.Name] = impl
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.impls[name]
	return ok
}

// Declarations returns the registered tools in registration order.
func (r *Registry) Declarations() []models.FunctionDeclaration {
	decls := make([]models.FunctionDeclaration, 0, len(r.names))
	for _, name := range r.names {
		decls = append(decls, r.decls[name])
	}
	return decls
}

// Invoke dispatches a tool call by name. Unknown names and implementation
// errors become failed ToolResults; a panicking implementation is confined
// here as well.
func (r *Registry) Invoke(name string, args map[string]interface{}) (result models.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Printf("tool %s panicked: %v", name, rec)
			result = models.Failure(fmt.Sprintf("Error: %v", rec))
		}
	}()

	impl, ok := r.impls[name]
	if !ok {
		return models.Failure(fmt.Sprintf("Unknown function: %s", name))
	}

	res, err := impl(args)
	if err != nil {
		r.logger.Printf("tool %s error: %v", name, err)
		return models.Failure(fmt.Sprintf("Error: %v", err))
	}
	if res.Message == "" {
		// The orchestration layer depends on Message always being present.
		if res.Success {
			res.Message = "OK"
		} else {
			res.Message = "Error: tool returned no message"
		}
	}
	return res
}
