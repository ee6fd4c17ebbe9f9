package planificadores

import (
	"context"
	"fmt"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/pkg/cpu"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// PlanificadorCortoPlazoFIFO reparte las CPUs libres entre los procesos de Ready en orden de llegada.
// Corre hasta que se cancele el contexto.
func (p *Service) PlanificadorCortoPlazoFIFO(ctx context.Context) {
	for {
		// Esperar hasta que haya trabajo que hacer
		select {
		case <-p.canalNuevoProcesoReady:
			p.Log.Debug("Notificación de nuevo proceso en Ready recibida")
		case <-ctx.Done():
			return
		}

		// Procesar todos los procesos en ReadyQueue
		for p.CantidadReady() > 0 {
			// Usar versión bloqueante para adquirir CPU
			cpuLibre, err := p.BuscarCPUDisponible(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				break
			}

			procesoElegido := p.sacarPrimeroDeReady()
			if procesoElegido == nil {
				// Lo finalizaron mientras se esperaba la CPU
				p.LiberarCPU(cpuLibre)
				break
			}

			p.ejecutar(procesoElegido, cpuLibre)
		}
	}
}

func (p *Service) ejecutar(proceso *proc.Proceso, cpuElegida *cpu.Cpu) {
	if !proceso.CambiarEstado(proc.EstadoReady, proc.EstadoExec) {
		p.LiberarCPU(cpuElegida)
		return
	}

	p.mutexEjecucion.Lock()
	p.ejecutando[proceso.PID] = cpuElegida
	p.mutexEjecucion.Unlock()

	//Log obligatorio: Cambio de estado
	p.Log.Info(fmt.Sprintf("## (%d) Pasa del estado READY al estado EXEC", proceso.PID))

	if err := cpuElegida.AsignarProceso(proceso.PID); err != nil {
		p.Log.Warn("La CPU no recibió el proceso",
			log.ErrAttr(err),
			log.StringAttr("cpu_id", cpuElegida.ID),
			log.IntAttr("pid", proceso.PID),
		)
	}

	avisar(p.turno(proceso.PID))
}

// Ceder devuelve la CPU del proceso y lo encola al final de Ready. Bloquea hasta que el planificador
// lo vuelva a elegir o hasta que el proceso finalice.
func (p *Service) Ceder(ctx context.Context, proceso *proc.Proceso) error {
	t := p.turno(proceso.PID)
	// Un aviso viejo (el del despacho anterior) no cuenta como turno nuevo
	select {
	case <-t:
	default:
	}

	if !proceso.CambiarEstado(proc.EstadoExec, proc.EstadoReady) {
		return fmt.Errorf("el proceso %d no está en EXEC (%s)", proceso.PID, proceso.Estado())
	}
	p.desalojar(proceso.PID)

	p.Log.Info(fmt.Sprintf("## (%d) - Desalojado por fin de quantum", proceso.PID))
	p.Log.Info(fmt.Sprintf("## (%d) Pasa del estado EXEC al estado READY", proceso.PID))

	p.agregarAReady(proceso)

	// Si se cancela la espera el proceso sigue en Ready y el planificador lo elige igual
	select {
	case <-t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Service) agregarAReady(proceso *proc.Proceso) {
	p.mutexReadyQueue.Lock()
	p.Planificador.ReadyQueue = append(p.Planificador.ReadyQueue, proceso)
	p.mutexReadyQueue.Unlock()

	p.notificarNuevoProcesoReady()
}

func (p *Service) sacarPrimeroDeReady() *proc.Proceso {
	p.mutexReadyQueue.Lock()
	defer p.mutexReadyQueue.Unlock()

	if len(p.Planificador.ReadyQueue) == 0 {
		return nil
	}
	primero := p.Planificador.ReadyQueue[0]
	p.Planificador.ReadyQueue = p.Planificador.ReadyQueue[1:]
	return primero
}

func (p *Service) quitarDeReady(pid int) bool {
	p.mutexReadyQueue.Lock()
	defer p.mutexReadyQueue.Unlock()

	for i, pr := range p.Planificador.ReadyQueue {
		if pr.PID == pid {
			p.Planificador.ReadyQueue = append(p.Planificador.ReadyQueue[:i], p.Planificador.ReadyQueue[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Service) quitarDeEjecucion(pid int) *cpu.Cpu {
	p.mutexEjecucion.Lock()
	defer p.mutexEjecucion.Unlock()

	c := p.ejecutando[pid]
	delete(p.ejecutando, pid)
	return c
}

// desalojar deja ociosa la CPU que ejecutaba pid y la devuelve al pool. Si el proceso después vuelve a
// EXEC en otra CPU, la anterior ya no manda trampas a su nombre.
func (p *Service) desalojar(pid int) {
	c := p.quitarDeEjecucion(pid)
	if c == nil {
		return
	}
	if err := c.AsignarProceso(0); err != nil {
		p.Log.Warn("No se pudo dejar ociosa la CPU",
			log.ErrAttr(err),
			log.StringAttr("cpu_id", c.ID),
			log.IntAttr("pid", pid),
		)
	}
	p.LiberarCPU(c)
}

func (p *Service) CantidadReady() int {
	p.mutexReadyQueue.Lock()
	defer p.mutexReadyQueue.Unlock()

	return len(p.Planificador.ReadyQueue)
}

// CPUDe devuelve la CPU en la que está ejecutando pid, o nil
func (p *Service) CPUDe(pid int) *cpu.Cpu {
	p.mutexEjecucion.Lock()
	defer p.mutexEjecucion.Unlock()

	return p.ejecutando[pid]
}
