package dispositivos

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// Peticion es una lectura de bloque pendiente en el disco principal
type Peticion struct {
	PID    int `json:"pid"`
	Bloque int `json:"bloque"`

	hecha chan struct{}
}

// Hecha se cierra cuando llega la interrupción que completa la petición
func (p *Peticion) Hecha() <-chan struct{} {
	return p.hecha
}

// Disco atiende las peticiones en orden de llegada: cada interrupción completa la primera de la cola
type Disco struct {
	Log *slog.Logger

	mu          sync.Mutex
	pendientes  []*Peticion
	completadas uint64
}

func NewDisco(logger *slog.Logger) *Disco {
	return &Disco{Log: logger}
}

func (d *Disco) Encolar(pid, bloque int) *Peticion {
	p := &Peticion{PID: pid, Bloque: bloque, hecha: make(chan struct{})}

	d.mu.Lock()
	d.pendientes = append(d.pendientes, p)
	d.mu.Unlock()

	d.Log.Debug("Petición de disco encolada",
		log.IntAttr("pid", pid),
		log.IntAttr("bloque", bloque),
	)
	return p
}

func (d *Disco) Interrupcion(_ context.Context) {
	d.mu.Lock()
	if len(d.pendientes) == 0 {
		d.mu.Unlock()
		d.Log.Warn("Interrupción de disco sin peticiones pendientes")
		return
	}
	p := d.pendientes[0]
	d.pendientes = d.pendientes[1:]
	d.completadas++
	d.mu.Unlock()

	close(p.hecha)
	d.Log.Info(fmt.Sprintf("## (%d) Fin de IO - Bloque: %d", p.PID, p.Bloque))
}

// Cancelar saca una petición que todavía no se completó
func (d *Disco) Cancelar(p *Peticion) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, pend := range d.pendientes {
		if pend == p {
			d.pendientes = append(d.pendientes[:i], d.pendientes[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Disco) Pendientes() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.pendientes)
}

func (d *Disco) Completadas() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.completadas
}
