package planificadores

import (
	"context"
	"errors"
	"fmt"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/pkg/cpu"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

var ErrDemasiadasCPUs = errors.New("se alcanzó la cantidad máxima de CPUs")

func (p *Service) AddCpuConectada(cpuId *CpuIdentificacion) (*cpu.Cpu, error) {
	p.mutexCPUsConectadas.Lock()
	defer p.mutexCPUsConectadas.Unlock()

	for _, c := range p.CPUsConectadas {
		if c.ID == cpuId.ID {
			// Reconexión: se actualiza la dirección sin sumar otro token
			c.IP = cpuId.IP
			c.Puerto = cpuId.Puerto
			return c, nil
		}
	}
	if len(p.CPUsConectadas) == cap(p.CPUSemaphore) {
		return nil, ErrDemasiadasCPUs
	}

	newCPU := cpu.NewCpu(cpuId.IP, cpuId.Puerto, cpuId.ID, p.Log)
	// Agregar la CPU a la lista de CPU conectadas
	p.CPUsConectadas = append(p.CPUsConectadas, newCPU)

	// Agregar un token al semáforo para indicar que hay una CPU más disponible
	p.CPUSemaphore <- struct{}{}

	p.Log.Debug("CPU conectada y agregada al pool",
		log.StringAttr("cpu_id", cpuId.ID),
		log.StringAttr("cpu_ip", cpuId.IP),
		log.IntAttr("cpu_puerto", cpuId.Puerto),
		log.IntAttr("cpus_disponibles", p.CantidadDeCpusDisponibles()))

	return newCPU, nil
}

// BuscarCPUDisponible adquiere una CPU del pool de CPUs disponibles.
// Bloquea hasta que haya una CPU disponible o se cancele el contexto
func (p *Service) BuscarCPUDisponible(ctx context.Context) (*cpu.Cpu, error) {
	// Esperar hasta que haya una CPU disponible (acquire semáforo)
	select {
	case <-p.CPUSemaphore:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Buscar y reservar una CPU libre
	p.mutexCPUsConectadas.Lock()
	defer p.mutexCPUsConectadas.Unlock()

	for i := range p.CPUsConectadas {
		if p.CPUsConectadas[i].Estado {
			p.CPUsConectadas[i].Estado = false // Marcar como ocupada
			p.Log.Debug("CPU adquirida",
				log.StringAttr("cpu_id", p.CPUsConectadas[i].ID))
			return p.CPUsConectadas[i], nil
		}
	}

	// Esto no debería suceder si el semáforo funciona correctamente
	p.Log.Error("Error: semáforo permitió adquirir CPU pero no hay CPUs libres")
	p.CPUSemaphore <- struct{}{}
	return nil, errors.New("no hay CPUs libres")
}

// LiberarCPU libera una CPU de vuelta al pool de CPUs disponibles
func (p *Service) LiberarCPU(cpuToRelease *cpu.Cpu) {
	p.mutexCPUsConectadas.Lock()
	defer p.mutexCPUsConectadas.Unlock()

	if cpuToRelease.Estado {
		return
	}
	cpuToRelease.Estado = true // Marcar como libre

	// Liberar el semáforo (release)
	p.CPUSemaphore <- struct{}{}

	p.Log.Debug("CPU liberada",
		log.StringAttr("cpu_id", cpuToRelease.ID))
}

// CantidadDeCpusDisponibles retorna el número de CPUs disponibles
func (p *Service) CantidadDeCpusDisponibles() int {
	return len(p.CPUSemaphore)
}

// InvalidarTLB avisa a todas las CPUs conectadas que el rango ya no está mapeado. Cualquiera pudo haber
// ejecutado al proceso antes, así que se invalida en todas y no sólo en la que lo ejecuta ahora.
func (p *Service) InvalidarTLB(ctx context.Context, espacio proc.EspacioDeDirecciones, base, longitud uint64) error {
	p.mutexCPUsConectadas.Lock()
	cpus := make([]*cpu.Cpu, len(p.CPUsConectadas))
	copy(cpus, p.CPUsConectadas)
	p.mutexCPUsConectadas.Unlock()

	var errs []error
	for _, c := range cpus {
		if err := c.InvalidarTLB(ctx, espacio.PID, base, longitud); err != nil {
			errs = append(errs, fmt.Errorf("cpu %s: %w", c.ID, err))
		}
	}
	return errors.Join(errs...)
}
