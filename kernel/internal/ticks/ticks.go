package ticks

import (
	"context"
	"sync"
)

// Contador es el reloj compartido del kernel. Sólo lo incrementa la CPU dueña de los ticks;
// cualquiera puede leerlo o esperar a que llegue a un valor.
type Contador struct {
	mu     sync.Mutex
	valor  uint64
	cambio chan struct{}
}

func NuevoContador() *Contador {
	return &Contador{cambio: make(chan struct{})}
}

// Incrementar suma un tick y despierta a todos los que esperan
func (c *Contador) Incrementar() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valor++
	close(c.cambio)
	c.cambio = make(chan struct{})
	return c.valor
}

func (c *Contador) Valor() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.valor
}

// Esperar bloquea hasta que el contador llegue a hasta o se cancele el contexto
func (c *Contador) Esperar(ctx context.Context, hasta uint64) error {
	for {
		c.mu.Lock()
		if c.valor >= hasta {
			c.mu.Unlock()
			return nil
		}
		cambio := c.cambio
		c.mu.Unlock()

		select {
		case <-cambio:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
