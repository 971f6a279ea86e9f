package automerge

// Filter decides which CI events are processed.
type Filter struct {
	trustedActor string
}

func NewFilter(trustedActor string) *Filter {
	return &Filter{trustedActor: trustedActor}
}

// Admit returns true if the CI run concluded successfully and was triggered
// by the trusted actor.
// If no trusted actor is configured, no event is admitted.
func (f *Filter) Admit(ev *CIEvent) bool {
	if ev == nil || f.trustedActor == "" {
		return false
	}

	return ev.Conclusion == ConclusionSuccess && ev.ActorLogin == f.trustedActor
}
