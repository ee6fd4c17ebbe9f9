package planificadores

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/pkg/cpu"
)

type Service struct {
	Planificador   *Planificador
	Log            *slog.Logger
	CPUsConectadas []*cpu.Cpu
	CPUSemaphore   chan struct{}

	// AlFinalizar se llama una vez por proceso, después de pasarlo a EXIT
	AlFinalizar func(ctx context.Context, p *proc.Proceso)

	mutexReadyQueue     sync.Mutex
	mutexExitQueue      sync.Mutex
	mutexCPUsConectadas sync.Mutex
	mutexEjecucion      sync.Mutex

	// turnos avisa a quien cedió la CPU que el planificador lo volvió a elegir (o que terminó)
	turnos     map[int]chan struct{}
	ejecutando map[int]*cpu.Cpu

	canalNuevoProcesoReady chan struct{}
}

type Planificador struct {
	ReadyQueue []*proc.Proceso
	ExitQueue  []*proc.Proceso
}

type CpuIdentificacion struct {
	IP     string `json:"ip"`
	Puerto int    `json:"puerto"`
	ID     string `json:"id"`
}

// NewPlanificador crea el planificador de corto plazo. cantidadCPUs es la cantidad máxima de CPUs que se pueden conectar.
func NewPlanificador(log *slog.Logger, cantidadCPUs int) *Service {
	return &Service{
		Planificador: &Planificador{
			ReadyQueue: make([]*proc.Proceso, 0),
			ExitQueue:  make([]*proc.Proceso, 0),
		},
		Log:                    log,
		CPUsConectadas:         make([]*cpu.Cpu, 0),
		CPUSemaphore:           make(chan struct{}, cantidadCPUs),
		turnos:                 make(map[int]chan struct{}),
		ejecutando:             make(map[int]*cpu.Cpu),
		canalNuevoProcesoReady: make(chan struct{}, 1), // Canal con buffer de 1
	}
}

func (p *Service) notificarNuevoProcesoReady() {
	select {
	case p.canalNuevoProcesoReady <- struct{}{}:
	default:
		// Ya hay una notificación pendiente
	}
}

func (p *Service) turno(pid int) chan struct{} {
	p.mutexEjecucion.Lock()
	defer p.mutexEjecucion.Unlock()

	t, ok := p.turnos[pid]
	if !ok {
		t = make(chan struct{}, 1)
		p.turnos[pid] = t
	}
	return t
}

func avisar(t chan struct{}) {
	select {
	case t <- struct{}{}:
	default:
	}
}
