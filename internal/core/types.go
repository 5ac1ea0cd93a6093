package core

// DefaultNamespace is used when a request leaves the namespace empty.
const DefaultNamespace = "alephbet"

// ParticipateEvent is the baseline event type counted as a trial.
const ParticipateEvent = "participate"

// ----------------------------------------------------
// ================ Request ================

// TrackRequest reports one participate or goal event.
type TrackRequest struct {
	Namespace  string `json:"namespace,omitempty"`
	Experiment string `json:"experiment"`
	UUID       string `json:"uuid"`
	Variant    string `json:"variant"`
	Event      string `json:"event"`
}

// ExperimentRequest reads the goal reports of one experiment.
type ExperimentRequest struct {
	Namespace  string `json:"namespace,omitempty"`
	Experiment string `json:"experiment"`
}

// AllRequest reads every experiment of a namespace, or only those named in Scope
// (comma-separated).
type AllRequest struct {
	Namespace string `json:"namespace,omitempty"`
	Scope     string `json:"scope,omitempty"`
}

// DeleteRequest removes an experiment with all of its counters.
type DeleteRequest struct {
	Namespace  string `json:"namespace,omitempty"`
	Experiment string `json:"experiment"`
}

// ----------------------------------------------------
// ================ Response ================

// VariantResult is the trial/success pair of one variant for one goal.
type VariantResult struct {
	Label     string `json:"label"`
	Successes int64  `json:"successes"`
	Trials    int64  `json:"trials"`
}

// GoalReport lists the results of every known variant for one goal.
type GoalReport struct {
	Goal    string          `json:"goal"`
	Results []VariantResult `json:"results"`
}

// ExperimentResult is one entry of an all-experiments response.
type ExperimentResult struct {
	Experiment string       `json:"experiment"`
	Goals      []GoalReport `json:"goals"`
}

// Meta echoes the requested scope. Scope is nil when no scope was given.
type Meta struct {
	Scope *string `json:"scope"`
}

// MetaRecord is the leading record of an all-experiments response.
type MetaRecord struct {
	Meta Meta `json:"meta"`
}

// AllResult is the response of the all operation.
type AllResult struct {
	Meta        Meta
	Experiments []ExperimentResult
}

// Records flattens the result into its wire shape: the metadata record first,
// followed by one record per experiment.
func (r AllResult) Records() []any {
	records := make([]any, 0, len(r.Experiments)+1)
	records = append(records, MetaRecord{Meta: r.Meta})
	for _, ex := range r.Experiments {
		records = append(records, ex)
	}
	return records
}

// NamespaceOrDefault returns ns, or DefaultNamespace when ns is empty.
func NamespaceOrDefault(ns string) string {
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}
