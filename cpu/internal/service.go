package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sisoputnfrba/tp-trapkernel/cpu/internal/mmu"
	"github.com/sisoputnfrba/tp-trapkernel/cpu/pkg/kernel"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

var (
	ErrProcesoTerminado = errors.New("el proceso terminó")
	ErrFalloNoResuelto  = errors.New("la página sigue ausente después del page fault")
	ErrSinProceso       = errors.New("la CPU no tiene un proceso asignado")
)

// Kernel es la entrada al kernel que usa la CPU
type Kernel interface {
	EnviarTrampa(ctx context.Context, pid int, tf kernel.Trampa) (kernel.TrampaResponse, error)
	RetornoLlamada(ctx context.Context, pid int) (kernel.TrampaResponse, error)
}

// Memoria son los accesos a direcciones físicas
type Memoria interface {
	Read(ctx context.Context, pid int, fisica uint64, tamanio int) ([]byte, error)
	Write(ctx context.Context, pid int, fisica uint64, datos []byte) error
}

// Service es una CPU: ejecuta accesos en nombre del proceso asignado y entra al kernel con trampas
type Service struct {
	Log     *slog.Logger
	Numero  int
	Kernel  Kernel
	Memoria Memoria
	MMU     *mmu.MMU

	mutexProceso sync.RWMutex
	pid          int

	// timerEnCurso son los pids con una interrupción de timer esperando respuesta del kernel
	mutexTimer   sync.Mutex
	timerEnCurso map[int]bool
}

func NewService(logger *slog.Logger, numero int, k Kernel, mem Memoria, m *mmu.MMU) *Service {
	return &Service{
		Log:     logger,
		Numero:  numero,
		Kernel:  k,
		Memoria: mem,
		MMU:     m,
	}
}

// AsignarProceso cambia el proceso en ejecución. pid 0 deja la CPU ociosa.
func (s *Service) AsignarProceso(pid int) {
	s.mutexProceso.Lock()
	defer s.mutexProceso.Unlock()

	s.pid = pid
}

func (s *Service) PID() int {
	s.mutexProceso.RLock()
	defer s.mutexProceso.RUnlock()

	return s.pid
}

// Acceso es un pedido de lectura o escritura de una dirección lógica
type Acceso struct {
	PID       int
	Direccion uint64
	Escritura bool
	Datos     []byte
	Tamanio   int
	Kernel    bool // el acceso lo hace el kernel en nombre del proceso, por ejemplo al copiar un argumento
}

// Acceder traduce la dirección y accede a memoria. Una página ausente genera un page fault; si el kernel
// reanuda el proceso se reintenta la traducción una única vez.
func (s *Service) Acceder(ctx context.Context, a Acceso) ([]byte, error) {
	fisica, err := s.traducir(ctx, a)
	if err == nil {
		var datos []byte
		if a.Escritura {
			err = s.Memoria.Write(ctx, a.PID, fisica, a.Datos)
		} else {
			datos, err = s.Memoria.Read(ctx, a.PID, fisica, a.Tamanio)
		}
		if err == nil {
			s.Log.Info(fmt.Sprintf("PID: %d - Acción: %s - Dirección Física: %d", a.PID, accion(a), fisica))
		}
		if a.Kernel {
			if errRetorno := s.retornoLlamada(ctx, a.PID); errRetorno != nil {
				return nil, errRetorno
			}
		}
		return datos, err
	}
	if a.Kernel && !errors.Is(err, ErrProcesoTerminado) && !errors.Is(err, kernel.ErrSistemaDetenido) {
		if errRetorno := s.retornoLlamada(ctx, a.PID); errRetorno != nil {
			return nil, errRetorno
		}
	}
	return nil, err
}

func (s *Service) traducir(ctx context.Context, a Acceso) (uint64, error) {
	for intento := 0; intento < 2; intento++ {
		fisica, t, presente, err := s.MMU.Traducir(ctx, a.PID, a.Direccion)
		if err != nil {
			return 0, err
		}
		if presente && (!a.Escritura || t.Escritura) {
			return fisica, nil
		}
		if intento == 1 {
			break
		}

		codigo := uint32(0)
		if presente {
			codigo |= kernel.ErrPresente
		}
		if a.Escritura {
			codigo |= kernel.ErrEscritura
		}
		privilegio := kernel.PrivilegioKernel
		if !a.Kernel {
			codigo |= kernel.ErrUsuario
			privilegio = kernel.PrivilegioUsuario
		}

		resp, err := s.entrar(ctx, a.PID, kernel.Trampa{
			Numero:         kernel.TrampaPageFault,
			CodigoError:    codigo,
			Privilegio:     privilegio,
			DireccionFallo: a.Direccion,
		})
		if err != nil {
			return 0, err
		}
		if resp.Resultado == kernel.Terminado {
			return 0, ErrProcesoTerminado
		}
	}
	return 0, fmt.Errorf("%w: %#x", ErrFalloNoResuelto, a.Direccion)
}

// Syscall entra al kernel con la llamada y sus argumentos. Devuelve el valor de retorno.
func (s *Service) Syscall(ctx context.Context, pid int, llamada uint32, args [3]uint64) (int64, error) {
	resp, err := s.entrar(ctx, pid, kernel.Trampa{
		Numero:     kernel.TrampaSyscall,
		Privilegio: kernel.PrivilegioUsuario,
		Software:   true,
		Registros:  kernel.Registros{Llamada: llamada, Args: args},
	})
	if err != nil {
		return 0, err
	}
	if resp.Resultado == kernel.Terminado {
		return 0, ErrProcesoTerminado
	}
	return resp.Retorno, nil
}

// Interrumpir entrega una interrupción de hardware a esta CPU. Si hay un proceso corriendo, la trampa
// ocurre en modo usuario.
func (s *Service) Interrumpir(ctx context.Context, vector uint32) (string, error) {
	return s.interrumpir(ctx, s.PID(), vector)
}

func (s *Service) interrumpir(ctx context.Context, pid int, vector uint32) (string, error) {
	privilegio := kernel.PrivilegioKernel
	if pid != 0 {
		privilegio = kernel.PrivilegioUsuario
	}

	resp, err := s.entrar(ctx, pid, kernel.Trampa{Numero: vector, Privilegio: privilegio})
	if err != nil {
		return "", err
	}
	return resp.Resultado, nil
}

// IniciarTimer genera una interrupción de timer cada intervalo hasta que se cancele ctx. Cuando el kernel
// desaloja al proceso, su trampa queda esperando turno y la CPU sigue recibiendo ticks con el proceso
// que tenga asignado después; nunca hay dos interrupciones de timer en curso para el mismo pid.
func (s *Service) IniciarTimer(ctx context.Context, intervalo time.Duration) {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticker := time.NewTicker(intervalo)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pid := s.PID()
			if !s.reservarTimer(pid) {
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.liberarTimer(pid)

				_, err := s.interrumpir(ctx, pid, kernel.VectorTimer)
				if errors.Is(err, kernel.ErrSistemaDetenido) {
					s.Log.Error("El kernel está detenido, se apaga el timer", log.ErrAttr(err))
					cancel()
					return
				}
				if err != nil && ctx.Err() == nil {
					s.Log.Warn("Error enviando la interrupción de timer", log.ErrAttr(err))
				}
			}()
		}
	}
}

func (s *Service) reservarTimer(pid int) bool {
	s.mutexTimer.Lock()
	defer s.mutexTimer.Unlock()

	if s.timerEnCurso == nil {
		s.timerEnCurso = make(map[int]bool)
	}
	if s.timerEnCurso[pid] {
		return false
	}
	s.timerEnCurso[pid] = true
	return true
}

func (s *Service) liberarTimer(pid int) {
	s.mutexTimer.Lock()
	defer s.mutexTimer.Unlock()

	delete(s.timerEnCurso, pid)
}

func (s *Service) retornoLlamada(ctx context.Context, pid int) error {
	resp, err := s.Kernel.RetornoLlamada(ctx, pid)
	if err != nil {
		return err
	}
	if resp.Resultado == kernel.Terminado {
		s.finalizar(pid)
		return ErrProcesoTerminado
	}
	return nil
}

// entrar envía la trampa al kernel. Si el proceso terminó se limpia la TLB y la CPU queda ociosa.
func (s *Service) entrar(ctx context.Context, pid int, tf kernel.Trampa) (kernel.TrampaResponse, error) {
	tf.CPU = s.Numero

	resp, err := s.Kernel.EnviarTrampa(ctx, pid, tf)
	if err != nil {
		return resp, err
	}

	s.Log.Debug("Respuesta del kernel",
		log.IntAttr("pid", pid),
		log.IntAttr("trampa", int(tf.Numero)),
		log.StringAttr("resultado", resp.Resultado),
	)

	if resp.Resultado == kernel.Terminado && pid != 0 {
		s.finalizar(pid)
	}
	return resp, nil
}

func (s *Service) finalizar(pid int) {
	s.MMU.Invalidar(pid)

	s.mutexProceso.Lock()
	if s.pid == pid {
		s.pid = 0
	}
	s.mutexProceso.Unlock()

	s.Log.Info(fmt.Sprintf("## PID: %d - Finalizado en CPU %d", pid, s.Numero))
}

func accion(a Acceso) string {
	if a.Escritura {
		return "ESCRIBIR"
	}
	return "LEER"
}
