package planificadores

import (
	"context"
	"fmt"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
)

// Admitir pasa un proceso de NEW a READY
func (p *Service) Admitir(proceso *proc.Proceso) error {
	if !proceso.CambiarEstado(proc.EstadoNew, proc.EstadoReady) {
		return fmt.Errorf("el proceso %d no está en NEW (%s)", proceso.PID, proceso.Estado())
	}
	p.turno(proceso.PID)

	p.Log.Info(fmt.Sprintf("## (%d) Se crea el proceso - Estado: NEW", proceso.PID))
	p.Log.Info(fmt.Sprintf("## (%d) Pasa del estado NEW al estado READY", proceso.PID))

	p.agregarAReady(proceso)
	return nil
}

// Terminar pasa el proceso a EXIT desde cualquier estado, libera su CPU y despierta a quien esté esperando turno.
// Llamarlo de nuevo sobre un proceso finalizado no hace nada.
func (p *Service) Terminar(ctx context.Context, proceso *proc.Proceso) {
	var anterior proc.Estado
	for {
		anterior = proceso.Estado()
		if anterior == proc.EstadoExit {
			return
		}
		if proceso.CambiarEstado(anterior, proc.EstadoExit) {
			break
		}
	}

	p.quitarDeReady(proceso.PID)
	p.desalojar(proceso.PID)

	p.mutexExitQueue.Lock()
	p.Planificador.ExitQueue = append(p.Planificador.ExitQueue, proceso)
	p.mutexExitQueue.Unlock()

	p.mutexEjecucion.Lock()
	t, ok := p.turnos[proceso.PID]
	delete(p.turnos, proceso.PID)
	p.mutexEjecucion.Unlock()
	if ok {
		avisar(t)
	}

	p.Log.Info(fmt.Sprintf("## (%d) Pasa del estado %s al estado EXIT", proceso.PID, anterior))
	p.Log.Info(fmt.Sprintf("## (%d) Finaliza el proceso", proceso.PID))

	if p.AlFinalizar != nil {
		p.AlFinalizar(ctx, proceso)
	}
}

func (p *Service) Finalizados() []*proc.Proceso {
	p.mutexExitQueue.Lock()
	defer p.mutexExitQueue.Unlock()

	res := make([]*proc.Proceso, len(p.Planificador.ExitQueue))
	copy(res, p.Planificador.ExitQueue)
	return res
}
