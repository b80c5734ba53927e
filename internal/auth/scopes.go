package auth

// Known OAuth scopes used by the coaching backend.
const (
	ScopeSchedulesRead    = "schedules:read"
	ScopeCompletionsWrite = "completions:write"
	ScopeCadenceWrite     = "cadence:write"
)
