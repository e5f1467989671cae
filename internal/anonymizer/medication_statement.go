package anonymizer

type medicationStatementTransformer struct{}

func (medicationStatementTransformer) Kind() Kind { return KindMedicationStatement }

// Transform rewrites the statement's id, its subject through the registry and
// its context (an encounter) by derivation.
func (medicationStatementTransformer) Transform(r Resource, env *Env) (Resource, []Warning, error) {
	m, ok := r.(*MedicationStatement)
	if !ok {
		return nil, nil, kindMismatch(KindMedicationStatement, r)
	}
	out := &MedicationStatement{Rest: m.Rest.Clone()}
	subject, warns := rewriteSubject(env, "MedicationStatement.subject", m.Subject)
	out.Subject = subject
	out.Context = rewriteEncounter(env, m.Context)
	out.ID = resourceID(env, m.ID)
	record(env, KindMedicationStatement, m.ID, out.ID)
	return out, warns, nil
}
