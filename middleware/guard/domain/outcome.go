package domain

// AuthOutcome é a etiqueta de autorização gravada em cada registro de log.
type AuthOutcome string

const (
	OutcomeAuthorized  AuthOutcome = "authorized"
	OutcomeMissingKey  AuthOutcome = "missing_key"
	OutcomeInvalidKey  AuthOutcome = "invalid_key"
	OutcomeBlocked     AuthOutcome = "blocked"
	OutcomeRateLimited AuthOutcome = "rate_limited"
	OutcomeError       AuthOutcome = "error"
	// OutcomeUnknown marca rotas monitoradas em que o gate não rodou.
	OutcomeUnknown AuthOutcome = "unknown"
)

// Allowed indica se o resultado deixa a requisição seguir.
func (o AuthOutcome) Allowed() bool { return o == OutcomeAuthorized }

// Err traduz o resultado para o erro da taxonomia (nil quando permitido).
func (o AuthOutcome) Err() error {
	switch o {
	case OutcomeMissingKey:
		return ErrMissingCredential
	case OutcomeInvalidKey:
		return ErrInvalidCredential
	case OutcomeBlocked:
		return ErrBlocked
	case OutcomeRateLimited:
		return ErrRateLimited
	}
	return nil
}
