package dispositivos

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// Consola modela el teclado y el puerto serie: lo que se ingresa queda en el dispositivo
// hasta que la interrupción lo pasa al buffer del kernel.
type Consola struct {
	Nombre string
	Log    *slog.Logger

	mu             sync.Mutex
	entrada        []byte
	buffer         []byte
	interrupciones uint64
}

func NewConsola(nombre string, logger *slog.Logger) *Consola {
	return &Consola{Nombre: nombre, Log: logger}
}

// Ingresar deja bytes en el dispositivo sin generar la interrupción
func (c *Consola) Ingresar(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entrada = append(c.entrada, b...)
}

func (c *Consola) Interrupcion(_ context.Context) {
	c.mu.Lock()
	n := len(c.entrada)
	c.buffer = append(c.buffer, c.entrada...)
	c.entrada = c.entrada[:0]
	c.interrupciones++
	c.mu.Unlock()

	c.Log.Debug("Interrupción de consola",
		log.StringAttr("dispositivo", c.Nombre),
		log.IntAttr("bytes", n),
	)
}

// Leer vacía el buffer del kernel
func (c *Consola) Leer() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.buffer
	c.buffer = nil
	return res
}

func (c *Consola) Interrupciones() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.interrupciones
}
