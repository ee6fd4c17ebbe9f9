package uniqueid

import "sync"

// UniqueID entrega identificadores crecientes (los PIDs del kernel). Nunca reutiliza un valor.
type UniqueID struct {
	mu     sync.Mutex
	nextID int
}

func Init() *UniqueID {
	return InitDesde(1) // El PID 0 queda reservado para "sin proceso" (CPU ociosa)
}

// InitDesde arranca la secuencia en primero
func InitDesde(primero int) *UniqueID {
	return &UniqueID{
		nextID: primero,
	}
}

func (u *UniqueID) GetUniqueID() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	id := u.nextID
	u.nextID++
	return id
}

// Ultimo devuelve el último identificador entregado, o primero-1 si todavía no se pidió ninguno
func (u *UniqueID) Ultimo() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.nextID - 1
}
