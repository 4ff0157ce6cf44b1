package domain

import "errors"

var (
	// ErrUnknownCategory indica categoria sem política (erro de configuração).
	// Sempre nega a requisição, independente do FailureMode.
	ErrUnknownCategory = errors.New("unknown admission category")

	// ErrStoreUnavailable indica falha transitória do contador (rede, timeout).
	ErrStoreUnavailable = errors.New("counter store unavailable")

	ErrInvalidIdentity = errors.New("invalid identity key")
	ErrInvalidPolicy   = errors.New("invalid admission policy")

	// ErrQuotaExceeded não é retornado por Check: negar é uma decisão normal.
	// Existe para quem precisa transformar uma Decision negada em erro.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// IsConfigurationError reporta erros que indicam bug de deploy, não de tráfego.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnknownCategory) || errors.Is(err, ErrInvalidPolicy)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
