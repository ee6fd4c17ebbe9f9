package proc

import (
	"sync"
	"sync/atomic"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/trampas"
)

type Estado int32

const (
	EstadoNew Estado = iota
	EstadoReady
	EstadoExec
	EstadoBloqueado
	EstadoExit
)

func (e Estado) String() string {
	switch e {
	case EstadoNew:
		return "NEW"
	case EstadoReady:
		return "READY"
	case EstadoExec:
		return "EXEC"
	case EstadoBloqueado:
		return "BLOCKED"
	case EstadoExit:
		return "EXIT"
	default:
		return "DESCONOCIDO"
	}
}

// MaxArchivos es la cantidad de descriptores abiertos por proceso
const MaxArchivos = 16

// EspacioDeDirecciones identifica las tablas de páginas del proceso en Memoria
type EspacioDeDirecciones struct {
	PID int `json:"pid"`
}

// Proceso es el PCB visto desde el manejo de trampas. El flag killed y el estado los puede tocar
// cualquier CPU sin tomar un lock, por eso son atómicos.
type Proceso struct {
	PID     int
	Nombre  string
	Espacio EspacioDeDirecciones
	Mapeos  TablaMapeos

	estado  atomic.Int32
	killed  atomic.Bool
	trampa  atomic.Pointer[trampas.Trampa]
	retorno atomic.Int64

	muArchivos sync.RWMutex
	archivos   [MaxArchivos]*Archivo
}

func NuevoProceso(pid int, nombre string) *Proceso {
	return &Proceso{
		PID:     pid,
		Nombre:  nombre,
		Espacio: EspacioDeDirecciones{PID: pid},
	}
}

func (p *Proceso) Estado() Estado {
	return Estado(p.estado.Load())
}

func (p *Proceso) SetEstado(e Estado) {
	p.estado.Store(int32(e))
}

// CambiarEstado pasa de viejo a nuevo sólo si el proceso sigue en viejo
func (p *Proceso) CambiarEstado(viejo, nuevo Estado) bool {
	return p.estado.CompareAndSwap(int32(viejo), int32(nuevo))
}

// Kill marca al proceso para que termine. Devuelve true sólo la primera vez; marcarlo de nuevo no cambia nada.
func (p *Proceso) Kill() bool {
	return p.killed.CompareAndSwap(false, true)
}

func (p *Proceso) Killed() bool {
	return p.killed.Load()
}

// AsociarTrampa guarda el registro de la trampa en curso para que lo lea el manejador de syscalls
func (p *Proceso) AsociarTrampa(tf trampas.Trampa) {
	p.trampa.Store(&tf)
}

// SetRetorno guarda el valor de retorno de la última syscall
func (p *Proceso) SetRetorno(v int64) {
	p.retorno.Store(v)
}

func (p *Proceso) Retorno() int64 {
	return p.retorno.Load()
}

func (p *Proceso) Trampa() (trampas.Trampa, bool) {
	tf := p.trampa.Load()
	if tf == nil {
		return trampas.Trampa{}, false
	}
	return *tf, true
}

// AbrirArchivo ocupa el primer descriptor libre. Devuelve -1 si la tabla está llena.
func (p *Proceso) AbrirArchivo(a *Archivo) int {
	p.muArchivos.Lock()
	defer p.muArchivos.Unlock()

	for fd := range p.archivos {
		if p.archivos[fd] == nil {
			p.archivos[fd] = a
			return fd
		}
	}
	return -1
}

func (p *Proceso) CerrarArchivo(fd int) bool {
	p.muArchivos.Lock()
	defer p.muArchivos.Unlock()

	if fd < 0 || fd >= MaxArchivos || p.archivos[fd] == nil {
		return false
	}
	p.archivos[fd] = nil
	return true
}

// Archivo devuelve nil si el descriptor está fuera de rango o cerrado
func (p *Proceso) Archivo(fd int) *Archivo {
	p.muArchivos.RLock()
	defer p.muArchivos.RUnlock()

	if fd < 0 || fd >= MaxArchivos {
		return nil
	}
	return p.archivos[fd]
}
