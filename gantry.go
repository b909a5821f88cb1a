// Package gantry lets application code written against an HTTP-function
// contract and a key-value table contract run unmodified across a local
// development server, an AWS Lambda host, and an
// infrastructure-generation pipeline.
//
// There is no runtime scanning and no global registry: an App is an
// explicit registration table built at startup and threaded through
// every execution context.
package gantry

import (
	"context"
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/gantryhq/gantry/kv"
)

// Handler is the function contract: one request shape in, one response
// shape out.
type Handler[Req, Resp any] interface {
	Handle(ctx context.Context, req Req) (Resp, error)
}

// App is the registration table and service context for one
// application. Build it once at startup, register functions and
// entities, then hand it to a dispatcher or the infra pipeline.
type App struct {
	log         *logrus.Logger
	store       kv.Store
	tablePrefix string

	functions []*FunctionRegistration
	byName    map[string]*FunctionRegistration

	entities    []*TableRegistration
	entityTypes map[reflect.Type]*TableRegistration

	services  []reflect.Value
	overrides map[string]ResourceOverride
}

// Option configures an App.
type Option func(*App)

// WithLogger replaces the default logrus logger.
func WithLogger(log *logrus.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithStore replaces the default in-memory store.
func WithStore(store kv.Store) Option {
	return func(a *App) { a.store = store }
}

// WithTablePrefix namespaces every physical table name.
func WithTablePrefix(prefix string) Option {
	return func(a *App) { a.tablePrefix = prefix }
}

// WithResourceOverrides installs the outermost resource-option layer,
// keyed by function name. It wins over per-registration options.
func WithResourceOverrides(overrides map[string]ResourceOverride) Option {
	return func(a *App) {
		for name, o := range overrides {
			a.overrides[name] = o
		}
	}
}

// New builds an empty App. Defaults: a fresh in-memory store and a
// plain logrus logger.
func New(opts ...Option) *App {
	a := &App{
		log:         logrus.New(),
		store:       kv.NewMemoryStore(),
		byName:      make(map[string]*FunctionRegistration),
		entityTypes: make(map[reflect.Type]*TableRegistration),
		overrides:   make(map[string]ResourceOverride),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.store = kv.Prefixed(a.store, a.tablePrefix)
	return a
}

// ConnectStore builds the configured storage backend and installs it,
// namespaced with the app's table prefix. Call it after registration so
// the backend sees every entity's key layout.
func (a *App) ConnectStore(ctx context.Context, backend kv.Backend, region string) error {
	store, err := kv.NewStore(ctx, kv.FactoryConfig{
		Backend: backend,
		Region:  region,
		Specs:   a.TableSpecs(),
	})
	if err != nil {
		return err
	}
	a.store = kv.Prefixed(store, a.tablePrefix)
	return nil
}

// Logger is the app's diagnostic logger.
func (a *App) Logger() *logrus.Logger { return a.log }

// Store is the app's storage handle.
func (a *App) Store() kv.Store { return a.store }

// TablePrefix is the namespace applied to physical table names.
func (a *App) TablePrefix() string { return a.tablePrefix }

// Provide registers service values for constructor injection. A value
// satisfies a constructor parameter when it is assignable to the
// parameter type, so concrete values satisfy interface parameters.
func (a *App) Provide(values ...any) {
	for _, v := range values {
		rv := reflect.ValueOf(v)
		if !rv.IsValid() {
			panic("gantry: Provide called with nil")
		}
		a.services = append(a.services, rv)
	}
}

// Functions returns registrations in registration order, filtered by
// pred when non-nil. This path never requires dependency validation.
func (a *App) Functions(pred func(*FunctionRegistration) bool) []*FunctionRegistration {
	if pred == nil {
		out := make([]*FunctionRegistration, len(a.functions))
		copy(out, a.functions)
		return out
	}
	var out []*FunctionRegistration
	for _, reg := range a.functions {
		if pred(reg) {
			out = append(out, reg)
		}
	}
	return out
}

// Function looks a registration up by name.
func (a *App) Function(name string) (*FunctionRegistration, bool) {
	reg, ok := a.byName[name]
	return reg, ok
}

// Entities returns table registrations in registration order.
func (a *App) Entities() []*TableRegistration {
	out := make([]*TableRegistration, len(a.entities))
	copy(out, a.entities)
	return out
}

// TableSpecs maps each entity's physical table name (prefix applied) to
// its key attribute layout, for backends that need it.
func (a *App) TableSpecs() map[string]kv.TableSpec {
	specs := make(map[string]kv.TableSpec, len(a.entities))
	for _, reg := range a.entities {
		spec := kv.TableSpec{PartitionAttr: reg.Definition.PartitionKey.Name}
		if reg.Definition.HasSortKey() {
			spec.SortAttr = reg.Definition.SortKey.Name
		}
		specs[a.tablePrefix+reg.Definition.TableName] = spec
	}
	return specs
}

var (
	storeType  = reflect.TypeOf((*kv.Store)(nil)).Elem()
	loggerType = reflect.TypeOf((*logrus.Logger)(nil))
)

// CanSatisfy reports whether a constructor parameter type is
// satisfiable: the storage handle and the logger always are, everything
// else must be covered by a provided service.
func (a *App) CanSatisfy(t reflect.Type) bool {
	if t == storeType || t == loggerType {
		return true
	}
	for _, svc := range a.services {
		if svc.Type().AssignableTo(t) {
			return true
		}
	}
	return false
}

// Construct invokes a registration's constructor with resolved
// arguments and returns the handler instance.
func (a *App) Construct(reg *FunctionRegistration) (any, error) {
	ctor := reg.constructor.Type()
	args := make([]reflect.Value, ctor.NumIn())
	for i := 0; i < ctor.NumIn(); i++ {
		arg, err := a.resolve(ctor.In(i))
		if err != nil {
			return nil, fmt.Errorf("construct %s: parameter %d: %w", reg.Name, i, err)
		}
		args[i] = arg
	}
	out := reg.constructor.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, fmt.Errorf("construct %s: %w", reg.Name, out[1].Interface().(error))
	}
	return out[0].Interface(), nil
}

func (a *App) resolve(t reflect.Type) (reflect.Value, error) {
	switch t {
	case storeType:
		return reflect.ValueOf(a.store), nil
	case loggerType:
		return reflect.ValueOf(a.log), nil
	}
	for _, svc := range a.services {
		if svc.Type().AssignableTo(t) {
			return svc, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("no registered service for type %s", t)
}
