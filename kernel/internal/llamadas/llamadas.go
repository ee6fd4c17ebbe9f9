package llamadas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/ticks"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// Números de syscall (registro Llamada de la trampa)
const (
	SysGetpid uint32 = iota + 1
	SysExit
	SysUptime
	SysSleep
	SysKill
	SysMmap
	SysMunmap
)

// MmapAnonimo como descriptor pide un mapeo anónimo
const MmapAnonimo = ^uint64(0)

var ErrSinTrampa = errors.New("el proceso no tiene una trampa asociada")

// Liberador desinstala las páginas de un rango del espacio de direcciones
type Liberador interface {
	LiberarRango(ctx context.Context, espacio proc.EspacioDeDirecciones, base, longitud uint64) error
}

// Invalidador saca un rango desmapeado de las TLBs de las CPUs
type Invalidador interface {
	InvalidarTLB(ctx context.Context, espacio proc.EspacioDeDirecciones, base, longitud uint64) error
}

type Manejador struct {
	Log      *slog.Logger
	Ticks    *ticks.Contador
	Procesos *proc.Tabla
	Memoria  Liberador
	TLB      Invalidador
}

func NewManejador(logger *slog.Logger, contador *ticks.Contador, procesos *proc.Tabla, memoria Liberador, tlb Invalidador) *Manejador {
	return &Manejador{
		Log:      logger,
		Ticks:    contador,
		Procesos: procesos,
		Memoria:  memoria,
		TLB:      tlb,
	}
}

// Syscall ejecuta la llamada de la trampa asociada a p y deja el resultado en p.Retorno
func (m *Manejador) Syscall(ctx context.Context, p *proc.Proceso) error {
	tf, ok := p.Trampa()
	if !ok {
		p.SetRetorno(-1)
		return ErrSinTrampa
	}

	regs := tf.Registros
	var ret int64
	switch regs.Llamada {
	case SysGetpid:
		ret = int64(p.PID)
	case SysExit:
		p.Kill()
		m.Log.Info(fmt.Sprintf("## (%d) - Solicitó syscall: EXIT", p.PID))
	case SysUptime:
		ret = int64(m.Ticks.Valor())
	case SysSleep:
		ret = m.dormir(ctx, p, regs.Args[0])
	case SysKill:
		ret = m.matar(p, int(regs.Args[0]))
	case SysMmap:
		ret = m.mmap(p, regs.Args[0], regs.Args[1], regs.Args[2])
	case SysMunmap:
		ret = m.munmap(ctx, p, regs.Args[0])
	default:
		m.Log.Warn(fmt.Sprintf("## (%d) %s: syscall desconocida %d", p.PID, p.Nombre, regs.Llamada))
		ret = -1
	}

	p.SetRetorno(ret)
	return nil
}

// dormir espera n ticks. Se corta antes si matan al proceso.
func (m *Manejador) dormir(ctx context.Context, p *proc.Proceso, n uint64) int64 {
	inicio := m.Ticks.Valor()
	m.Log.Info(fmt.Sprintf("## (%d) - Solicitó syscall: SLEEP %d", p.PID, n))

	for {
		if p.Killed() {
			return -1
		}
		actual := m.Ticks.Valor()
		if actual-inicio >= n {
			return 0
		}
		if err := m.Ticks.Esperar(ctx, actual+1); err != nil {
			return -1
		}
	}
}

func (m *Manejador) matar(p *proc.Proceso, pid int) int64 {
	victima := m.Procesos.Buscar(pid)
	if victima == nil {
		return -1
	}
	victima.Kill()
	m.Log.Info(fmt.Sprintf("## (%d) - Solicitó syscall: KILL %d", p.PID, pid))
	return 0
}

func (m *Manejador) mmap(p *proc.Proceso, base, longitud, fd uint64) int64 {
	mapeo := proc.Mapeo{Base: base, Longitud: longitud, Anonimo: fd == MmapAnonimo}
	if !mapeo.Anonimo {
		if fd >= proc.MaxArchivos {
			return -1
		}
		mapeo.FD = int(fd)
	}

	slot, err := p.Mapeos.Agregar(mapeo)
	if err != nil {
		m.Log.Debug("mmap rechazado",
			log.ErrAttr(err),
			log.IntAttr("pid", p.PID),
			log.HexAttr("base", base),
		)
		return -1
	}

	m.Log.Info(fmt.Sprintf("## (%d) - Solicitó syscall: MMAP %#x %#x - Slot: %d", p.PID, base, longitud, slot))
	return int64(base)
}

func (m *Manejador) munmap(ctx context.Context, p *proc.Proceso, base uint64) int64 {
	mapeo, _, ok := p.Mapeos.Buscar(base)
	if !ok || mapeo.Base != base {
		return -1
	}
	if err := p.Mapeos.Quitar(base); err != nil {
		return -1
	}
	if m.Memoria != nil {
		if err := m.Memoria.LiberarRango(ctx, p.Espacio, mapeo.Base, mapeo.Longitud); err != nil {
			m.Log.Error("No se pudieron liberar las páginas del mapeo",
				log.ErrAttr(err),
				log.IntAttr("pid", p.PID),
				log.HexAttr("base", base),
			)
		}
	}
	// Las páginas ya no existen en Memoria: ninguna CPU puede seguir traduciéndolas por su TLB
	if m.TLB != nil {
		if err := m.TLB.InvalidarTLB(ctx, p.Espacio, mapeo.Base, mapeo.Longitud); err != nil {
			m.Log.Error("No se pudo invalidar la TLB del mapeo",
				log.ErrAttr(err),
				log.IntAttr("pid", p.PID),
				log.HexAttr("base", base),
			)
		}
	}

	m.Log.Info(fmt.Sprintf("## (%d) - Solicitó syscall: MUNMAP %#x", p.PID, base))
	return 0
}
