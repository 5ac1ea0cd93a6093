package core

import "strings"

type field struct {
	name  string
	value string
}

func checkRequired(fields ...field) error {
	for _, f := range fields {
		if f.value == "" {
			return missing(f.name)
		}
	}
	return nil
}

func checkKeyFields(fields ...field) error {
	for _, f := range fields {
		if err := CheckField(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a track request. The uuid is hashed into the marker and may
// contain any character.
func (r TrackRequest) Validate() error {
	if err := checkRequired(
		field{"experiment", r.Experiment},
		field{"uuid", r.UUID},
		field{"variant", r.Variant},
		field{"event", r.Event},
	); err != nil {
		return err
	}
	return checkKeyFields(
		field{"namespace", r.Namespace},
		field{"experiment", r.Experiment},
		field{"variant", r.Variant},
		field{"event", r.Event},
	)
}

func (r ExperimentRequest) Validate() error {
	if err := checkRequired(field{"experiment", r.Experiment}); err != nil {
		return err
	}
	return checkKeyFields(field{"namespace", r.Namespace}, field{"experiment", r.Experiment})
}

func (r DeleteRequest) Validate() error {
	if err := checkRequired(field{"experiment", r.Experiment}); err != nil {
		return err
	}
	return checkKeyFields(field{"namespace", r.Namespace}, field{"experiment", r.Experiment})
}

// Validate checks an all request. Every name in a non-empty scope must be
// non-empty.
func (r AllRequest) Validate() error {
	if err := CheckField("namespace", r.Namespace); err != nil {
		return err
	}
	for _, name := range SplitScope(r.Scope) {
		if name == "" {
			return &FieldError{Field: "scope", Err: ErrInvalidField}
		}
		if err := CheckField("scope", name); err != nil {
			return err
		}
	}
	return nil
}

// SplitScope splits a comma-separated list of experiment names. An empty scope
// yields nil.
func SplitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Split(scope, ",")
}
