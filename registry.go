package gantry

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/iancoleman/strcase"

	"github.com/gantryhq/gantry/entity"
)

// Resources are the deploy-time hints attached to a function. Layering:
// built-in defaults, then per-registration options, then app-level
// overrides. The outermost set layer wins per field.
type Resources struct {
	MemoryMB int
	Timeout  time.Duration
}

// DefaultResources is the innermost resource layer.
var DefaultResources = Resources{MemoryMB: 128, Timeout: 30 * time.Second}

// ResourceOverride is the outermost layer; zero fields are "unset".
type ResourceOverride struct {
	MemoryMB int           `mapstructure:"memory_mb"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// FunctionRegistration is the discovered metadata of one function:
// identity, request/response shapes, route and resource hints. It is
// immutable after registration.
type FunctionRegistration struct {
	Name         string
	Method       string
	Path         string
	RequestType  reflect.Type
	ResponseType reflect.Type
	HandlerType  reflect.Type

	constructor reflect.Value
	resources   Resources

	newRequest func() any
	call       func(ctx context.Context, handler, reqPtr any) (any, error)
}

// ConstructorType exposes the constructor signature for inspection.
func (r *FunctionRegistration) ConstructorType() reflect.Type {
	return r.constructor.Type()
}

// NewRequest allocates a pointer to a zero request shape for binding.
func (r *FunctionRegistration) NewRequest() any { return r.newRequest() }

// Call invokes the handler's Handle with a bound request pointer.
func (r *FunctionRegistration) Call(ctx context.Context, handler, reqPtr any) (any, error) {
	return r.call(ctx, handler, reqPtr)
}

// FunctionOption adjusts a registration.
type FunctionOption func(*FunctionRegistration)

// WithName overrides the derived function name.
func WithName(name string) FunctionOption {
	return func(r *FunctionRegistration) { r.Name = name }
}

// WithMemory sets the function's memory hint in MB.
func WithMemory(mb int) FunctionOption {
	return func(r *FunctionRegistration) { r.resources.MemoryMB = mb }
}

// WithTimeout sets the function's timeout hint.
func WithTimeout(d time.Duration) FunctionOption {
	return func(r *FunctionRegistration) { r.resources.Timeout = d }
}

// Register adds a function to the app's registration table. The
// constructor must be a func returning a Handler[Req, Resp] (plus an
// optional error); its remaining parameters are injected from the store
// handle, the logger, and provided services. Misshapen registrations
// are programmer errors and panic at startup.
func Register[Req, Resp any](a *App, method, path string, constructor any, opts ...FunctionOption) *FunctionRegistration {
	ctor := reflect.ValueOf(constructor)
	if !ctor.IsValid() || ctor.Kind() != reflect.Func {
		panic(fmt.Sprintf("gantry: constructor for %s %s is not a function", method, path))
	}
	ctorType := ctor.Type()
	if ctorType.NumOut() < 1 || ctorType.NumOut() > 2 {
		panic(fmt.Sprintf("gantry: constructor %s must return a handler (and optionally an error)", ctorType))
	}
	if ctorType.NumOut() == 2 && ctorType.Out(1) != reflect.TypeOf((*error)(nil)).Elem() {
		panic(fmt.Sprintf("gantry: constructor %s second result must be error", ctorType))
	}

	handlerType := ctorType.Out(0)
	contract := reflect.TypeOf((*Handler[Req, Resp])(nil)).Elem()
	if !handlerType.Implements(contract) {
		panic(fmt.Sprintf("gantry: %s does not implement Handler[%s, %s]",
			handlerType, reflect.TypeOf((*Req)(nil)).Elem(), reflect.TypeOf((*Resp)(nil)).Elem()))
	}

	reg := &FunctionRegistration{
		Name:         deriveName(handlerType),
		Method:       method,
		Path:         path,
		RequestType:  reflect.TypeOf((*Req)(nil)).Elem(),
		ResponseType: reflect.TypeOf((*Resp)(nil)).Elem(),
		HandlerType:  handlerType,
		constructor:  ctor,
		resources:    DefaultResources,
		newRequest:   func() any { return new(Req) },
		call: func(ctx context.Context, handler, reqPtr any) (any, error) {
			return handler.(Handler[Req, Resp]).Handle(ctx, *reqPtr.(*Req))
		},
	}
	for _, opt := range opts {
		opt(reg)
	}

	if _, exists := a.byName[reg.Name]; exists {
		panic(fmt.Sprintf("gantry: duplicate function name %q", reg.Name))
	}
	a.functions = append(a.functions, reg)
	a.byName[reg.Name] = reg
	return reg
}

// ResolvedResources applies the app-level override layer on top of a
// registration's resources.
func (a *App) ResolvedResources(reg *FunctionRegistration) Resources {
	res := reg.resources
	if o, ok := a.overrides[reg.Name]; ok {
		if o.MemoryMB != 0 {
			res.MemoryMB = o.MemoryMB
		}
		if o.Timeout != 0 {
			res.Timeout = o.Timeout
		}
	}
	return res
}

func deriveName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strcase.ToKebab(t.Name())
}

// TableRegistration is the discovered metadata of one storage entity.
type TableRegistration struct {
	Definition entity.Definition
}

// EntityOption adjusts a table registration.
type EntityOption func(*TableRegistration)

// WithTableName overrides the physical table name. There is no
// pluralization heuristic; renames are always explicit.
func WithTableName(name string) EntityOption {
	return func(r *TableRegistration) { r.Definition.TableName = name }
}

// RegisterEntity records a storage entity. Registering the same type
// twice is deduplicated; the first registration wins.
func RegisterEntity[T any](a *App, opts ...EntityOption) *TableRegistration {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if existing, ok := a.entityTypes[t]; ok {
		return existing
	}

	def, err := entity.Describe(t)
	if err != nil {
		panic(fmt.Sprintf("gantry: %v", err))
	}
	reg := &TableRegistration{Definition: def}
	for _, opt := range opts {
		opt(reg)
	}
	a.entities = append(a.entities, reg)
	a.entityTypes[t] = reg
	return reg
}
