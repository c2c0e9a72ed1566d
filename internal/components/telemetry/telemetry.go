package telemetry

// API is where the scraping components send what happened to them. Production binaries
// use SlogAPI, tests use a Recorder to assert that a failure was (or was not) reported.
type API interface {
	// ReportBroken reports a failure an operator has to look at: the portal answered
	// something unexpected, a store is unreachable, a page never parsed.
	//
	// `id` names the operation of the component that failed, ex. `manager.authenticate`
	// for any step of the CAS handshake. Ids are lowercase, components use underscores
	// and their operations are joined with a dot. The step that failed goes into the
	// wrapped error or the params.
	//
	// Credentials are never passed as params. Cookie values only go through ReportDebug.
	ReportBroken(id string, params ...any)

	// ReportWarning reports an expected failure, ex. rejected credentials or a
	// pagination field missing from the request. Ids follow ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug is only emitted when verbose output is on.
	ReportDebug(msg string, params ...any)
}

// ScopedAPI prefixes every id with the name of the component reporting it, so
// "manager.authenticate" reported by the auth component reads
// "sipac_auth: manager.authenticate".
type ScopedAPI struct {
	component string
	inner     API
}

func NewScopedAPI(component string, inner API) ScopedAPI {
	return ScopedAPI{component: component, inner: inner}
}

func (s ScopedAPI) scope(id string) string {
	return s.component + ": " + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scope(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scope(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scope(msg), params...)
}
