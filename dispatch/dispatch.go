// Package dispatch runs the per-request pipeline shared by the local
// server and the Lambda host: resolve the handler, bind the request,
// invoke, serialize. Both contexts get the identical error-mapping
// contract; only the transport envelope differs.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/gantryhq/gantry"
	"github.com/gantryhq/gantry/bind"
	"github.com/gantryhq/gantry/kv"
)

// Input is the transport-neutral request: route captures, query
// parameters and body, already extracted from the context's envelope.
type Input struct {
	Method string
	Route  map[string]string
	Query  map[string]string
	Body   []byte
}

// Result is the transport-neutral response.
type Result struct {
	Status int
	Body   []byte
}

type errorBody struct {
	Error string `json:"error"`
}

// Dispatcher resolves and invokes registered functions. Handler
// instances are constructed once and reused; handlers hold no
// per-request state.
type Dispatcher struct {
	app      *gantry.App
	validate *validator.Validate

	mu       sync.Mutex
	handlers map[string]any
}

// New builds a dispatcher over an app's registration table.
func New(app *gantry.App) *Dispatcher {
	return &Dispatcher{
		app:      app,
		validate: validator.New(),
		handlers: make(map[string]any),
	}
}

// Call runs one request through the pipeline. It never returns an
// error; every failure is already mapped to a terminal Result.
func (d *Dispatcher) Call(ctx context.Context, reg *gantry.FunctionRegistration, in Input) Result {
	handler, err := d.handler(reg)
	if err != nil {
		return d.internal(reg, err)
	}

	reqPtr := reg.NewRequest()
	if bindsBody(in.Method) {
		err = bind.JSON(reqPtr, in.Body)
		if err == nil && len(in.Route) > 0 {
			// Route parameters always win, even on body-bound methods.
			err = bind.Values(reqPtr, bind.Merged(in.Route, nil))
		}
	} else {
		err = bind.Values(reqPtr, bind.Merged(in.Route, in.Query))
	}
	if err != nil {
		return errorResult(http.StatusBadRequest, err.Error())
	}
	if err := d.check(reqPtr); err != nil {
		return errorResult(http.StatusBadRequest, err.Error())
	}

	resp, err := reg.Call(ctx, handler, reqPtr)
	if err != nil {
		return d.mapError(reg, err)
	}

	body, err := Marshal(resp)
	if err != nil {
		return d.internal(reg, err)
	}
	return Result{Status: http.StatusOK, Body: body}
}

// bindsBody reports whether a method carries its request in the JSON
// body rather than in route and query values.
func bindsBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
		return false
	}
	return true
}

func (d *Dispatcher) mapError(reg *gantry.FunctionRegistration, err error) Result {
	var bindErr *bind.Error
	switch {
	case kv.IsNotFound(err):
		return errorResult(http.StatusNotFound, err.Error())
	case errors.As(err, &bindErr):
		return errorResult(http.StatusBadRequest, err.Error())
	default:
		return d.internal(reg, err)
	}
}

// internal logs the full failure and returns a generic body; internal
// detail never leaks to the transport.
func (d *Dispatcher) internal(reg *gantry.FunctionRegistration, err error) Result {
	d.app.Logger().WithField("function", reg.Name).WithError(err).Error("function invocation failed")
	return errorResult(http.StatusInternalServerError, "internal server error")
}

func (d *Dispatcher) handler(reg *gantry.FunctionRegistration) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h, ok := d.handlers[reg.Name]; ok {
		return h, nil
	}
	h, err := d.app.Construct(reg)
	if err != nil {
		return nil, err
	}
	d.handlers[reg.Name] = h
	return h, nil
}

func (d *Dispatcher) check(reqPtr any) error {
	if reflect.ValueOf(reqPtr).Elem().Kind() != reflect.Struct {
		return nil
	}
	if err := d.validate.Struct(reqPtr); err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			return verr
		}
		// non-validation failures (bad shapes) are programmer errors
		return nil
	}
	return nil
}

func errorResult(status int, msg string) Result {
	body, _ := json.Marshal(errorBody{Error: msg})
	return Result{Status: status, Body: body}
}
