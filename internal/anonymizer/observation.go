package anonymizer

type observationTransformer struct{}

func (observationTransformer) Kind() Kind { return KindObservation }

func (observationTransformer) Transform(r Resource, env *Env) (Resource, []Warning, error) {
	o, ok := r.(*Observation)
	if !ok {
		return nil, nil, kindMismatch(KindObservation, r)
	}
	out := &Observation{Rest: o.Rest.Clone()}
	subject, warns := rewriteSubject(env, "Observation.subject", o.Subject)
	out.Subject = subject
	out.Encounter = rewriteEncounter(env, o.Encounter)
	out.ID = resourceID(env, o.ID)
	record(env, KindObservation, o.ID, out.ID)
	return out, warns, nil
}
