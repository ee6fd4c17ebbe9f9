package proc

import (
	"sort"
	"sync"

	uniqueid "github.com/sisoputnfrba/tp-trapkernel/utils/unique-id"
)

// Tabla es la tabla de procesos del kernel (pid -> PCB)
type Tabla struct {
	mu       sync.RWMutex
	pids     *uniqueid.UniqueID
	procesos map[int]*Proceso
}

func NuevaTabla() *Tabla {
	return &Tabla{
		pids:     uniqueid.Init(),
		procesos: make(map[int]*Proceso),
	}
}

// Crear da de alta un proceso en estado NEW con un PID nuevo
func (t *Tabla) Crear(nombre string) *Proceso {
	p := NuevoProceso(t.pids.GetUniqueID(), nombre)

	t.mu.Lock()
	t.procesos[p.PID] = p
	t.mu.Unlock()

	return p
}

// Buscar devuelve nil para el PID 0 (CPU ociosa) o un PID que no existe
func (t *Tabla) Buscar(pid int) *Proceso {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.procesos[pid]
}

func (t *Tabla) Eliminar(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.procesos, pid)
}

// Listar devuelve los procesos ordenados por PID
func (t *Tabla) Listar() []*Proceso {
	t.mu.RLock()
	lista := make([]*Proceso, 0, len(t.procesos))
	for _, p := range t.procesos {
		lista = append(lista, p)
	}
	t.mu.RUnlock()

	sort.Slice(lista, func(i, j int) bool {
		return lista[i].PID < lista[j].PID
	})
	return lista
}
