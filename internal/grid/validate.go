package grid

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// ErrInputData matches any *InputDataError via errors.Is.
var ErrInputData = &InputDataError{}

// InputDataError reports a malformed or inconsistent case. It is raised
// before any solve.
type InputDataError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InputDataError) Error() string {
	switch {
	case e.Field == "" && e.Reason == "":
		return "invalid input data"
	case e.Field == "":
		return "invalid input data: " + e.Reason
	}
	return fmt.Sprintf("invalid input data: %s: %s", e.Field, e.Reason)
}

func (e *InputDataError) Unwrap() error { return e.Err }

func (e *InputDataError) Is(target error) bool {
	_, ok := target.(*InputDataError)
	return ok
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross references of the case. It
// returns the first problem found as an *InputDataError.
func (s *System) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			reason := "failed " + fe.Tag()
			if fe.Param() != "" {
				reason += "=" + fe.Param()
			}
			return &InputDataError{Field: fe.Namespace(), Reason: reason, Err: err}
		}
		return &InputDataError{Reason: err.Error(), Err: err}
	}

	buses := make(map[string]bool, len(s.Buses))
	for _, b := range s.Buses {
		if buses[b.ID] {
			return &InputDataError{Field: "buses", Reason: "duplicate bus " + b.ID}
		}
		buses[b.ID] = true
	}
	checkBus := func(table, id, bus string) error {
		if !buses[bus] {
			return &InputDataError{Field: table + "." + id, Reason: "unknown bus " + bus}
		}
		return nil
	}

	ids := make(map[string]bool)
	unique := func(table, id string) error {
		key := table + "/" + id
		if ids[key] {
			return &InputDataError{Field: table, Reason: "duplicate id " + id}
		}
		ids[key] = true
		return nil
	}

	for _, l := range s.Lines {
		if err := unique("lines", l.ID); err != nil {
			return err
		}
		if err := checkBus("lines", l.ID, l.From); err != nil {
			return err
		}
		if err := checkBus("lines", l.ID, l.To); err != nil {
			return err
		}
	}
	for _, d := range s.Loads {
		if err := unique("loads", d.ID); err != nil {
			return err
		}
		if err := checkBus("loads", d.ID, d.Bus); err != nil {
			return err
		}
	}
	for _, g := range s.Generators {
		if err := unique("generators", g.ID); err != nil {
			return err
		}
		if err := checkBus("generators", g.ID, g.Bus); err != nil {
			return err
		}
		if g.MinOutput > g.CapacityForecast {
			return &InputDataError{Field: "generators." + g.ID, Reason: "min_output exceeds capacity_forecast"}
		}
	}
	for _, r := range s.Renewables {
		if err := unique("renewables", r.ID); err != nil {
			return err
		}
		if err := checkBus("renewables", r.ID, r.Bus); err != nil {
			return err
		}
	}
	for _, st := range s.Storage {
		if err := unique("storage", st.ID); err != nil {
			return err
		}
		if err := checkBus("storage", st.ID, st.Bus); err != nil {
			return err
		}
	}

	u := NewUncertainty(s)
	for _, c := range Classes {
		if g, n := s.Budgets.Of(c), len(u.Members(c)); g > n {
			slog.Warn("Uncertainty budget exceeds class size, clamping",
				"class", c.String(),
				"budget", g,
				"members", n,
			)
		}
	}
	return nil
}
