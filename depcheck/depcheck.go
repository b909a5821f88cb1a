// Package depcheck verifies, before first dispatch, that every
// registered function can actually be constructed. Violations are
// collected across all functions and reported as one failure; startup
// either has a complete dependency graph or a complete list of what is
// missing.
package depcheck

import (
	"fmt"
	"strings"

	"github.com/gantryhq/gantry"
)

// Missing is one unsatisfied constructor parameter.
type Missing struct {
	Function string
	Param    int
	Type     string
}

func (m Missing) String() string {
	return fmt.Sprintf("function %q parameter %d (%s) has no registered service", m.Function, m.Param, m.Type)
}

// Error aggregates every unsatisfied dependency, in registration order.
type Error struct {
	Missing []Missing
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unsatisfied dependencies (%d):", len(e.Missing))
	for _, m := range e.Missing {
		b.WriteString("\n  - ")
		b.WriteString(m.String())
	}
	return b.String()
}

// Validate walks every function's constructor. The storage handle and
// the logger are always externally satisfied; every other parameter
// type must be provided on the app. Validation is atomic: either nil or
// an *Error naming every missing requirement. Introspection paths must
// not call it.
func Validate(app *gantry.App) error {
	var missing []Missing
	for _, reg := range app.Functions(nil) {
		ctor := reg.ConstructorType()
		for i := 0; i < ctor.NumIn(); i++ {
			param := ctor.In(i)
			if app.CanSatisfy(param) {
				continue
			}
			missing = append(missing, Missing{
				Function: reg.Name,
				Param:    i,
				Type:     param.String(),
			})
		}
	}
	if len(missing) > 0 {
		return &Error{Missing: missing}
	}
	return nil
}
