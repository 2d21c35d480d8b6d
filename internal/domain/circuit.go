package domain

import "time"

// CircuitBreaker cuenta fallos consecutivos y, al llegar al umbral, pide una
// pausa. El contador se reinicia al disparar o con un éxito.
type CircuitBreaker struct {
	Name      string
	Threshold int
	Pause     time.Duration
	count     int
}

// Record registra un fallo y devuelve la pausa a aplicar (0 si no dispara).
func (cb *CircuitBreaker) Record() time.Duration {
	cb.count++
	if cb.Threshold > 0 && cb.count >= cb.Threshold {
		cb.count = 0
		return cb.Pause
	}
	return 0
}

// Reset limpia el contador tras un éxito.
func (cb *CircuitBreaker) Reset() { cb.count = 0 }

// Count devuelve los fallos consecutivos acumulados.
func (cb *CircuitBreaker) Count() int { return cb.count }
