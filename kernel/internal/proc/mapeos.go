package proc

import (
	"errors"
	"fmt"
	"sync"
)

const (
	// MaxMapeos es la cantidad de slots de mapeo por proceso
	MaxMapeos     = 16
	TamanioPagina = 4096
)

var (
	ErrTablaLlena         = errors.New("no hay slots de mapeo libres")
	ErrSolapamiento       = errors.New("el mapeo se solapa con otro existente")
	ErrLongitudInvalida   = errors.New("longitud de mapeo inválida")
	ErrMapeoInexistente   = errors.New("no existe un mapeo con esa base")
	ErrBaseDesalineada    = errors.New("la base del mapeo no está alineada a página")
	ErrDescriptorInvalido = errors.New("descriptor de archivo inválido")
)

// Mapeo asocia [Base, Base+Longitud) con memoria anónima o con el archivo del descriptor FD
type Mapeo struct {
	Base     uint64 `json:"base"`
	Longitud uint64 `json:"longitud"`
	Anonimo  bool   `json:"anonimo"`
	FD       int    `json:"fd"`
}

// Contiene usa el intervalo semiabierto sin calcular Base+Longitud, que podría desbordar
func (m Mapeo) Contiene(va uint64) bool {
	return va >= m.Base && va-m.Base < m.Longitud
}

func (m Mapeo) seSolapa(o Mapeo) bool {
	return m.Contiene(o.Base) || o.Contiene(m.Base)
}

// TablaMapeos tiene slots fijos: un slot vacío es nil y quitar un mapeo no corre a los demás.
type TablaMapeos struct {
	mu    sync.RWMutex
	slots [MaxMapeos]*Mapeo
}

// Agregar ocupa el primer slot libre y devuelve su índice
func (t *TablaMapeos) Agregar(m Mapeo) (int, error) {
	if m.Longitud == 0 || m.Base+m.Longitud < m.Base {
		return -1, ErrLongitudInvalida
	}
	if m.Base%TamanioPagina != 0 {
		return -1, ErrBaseDesalineada
	}
	if !m.Anonimo && (m.FD < 0 || m.FD >= MaxArchivos) {
		return -1, ErrDescriptorInvalido
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	libre := -1
	for i, s := range t.slots {
		if s == nil {
			if libre < 0 {
				libre = i
			}
			continue
		}
		if s.seSolapa(m) {
			return -1, fmt.Errorf("%w: slot %d [%#x, %#x)", ErrSolapamiento, i, s.Base, s.Base+s.Longitud)
		}
	}
	if libre < 0 {
		return -1, ErrTablaLlena
	}

	nuevo := m
	t.slots[libre] = &nuevo
	return libre, nil
}

// Quitar vacía el slot cuyo mapeo empieza en base
func (t *TablaMapeos) Quitar(base uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, s := range t.slots {
		if s != nil && s.Base == base {
			t.slots[i] = nil
			return nil
		}
	}
	return ErrMapeoInexistente
}

// Buscar recorre los slots y devuelve el mapeo que contiene va
func (t *TablaMapeos) Buscar(va uint64) (Mapeo, int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, s := range t.slots {
		if s != nil && s.Contiene(va) {
			return *s, i, true
		}
	}
	return Mapeo{}, -1, false
}

func (t *TablaMapeos) Slot(i int) (Mapeo, bool) {
	if i < 0 || i >= MaxMapeos {
		return Mapeo{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.slots[i] == nil {
		return Mapeo{}, false
	}
	return *t.slots[i], true
}

// Ocupados devuelve una copia de los slots no vacíos indexados por slot
func (t *TablaMapeos) Ocupados() map[int]Mapeo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	res := make(map[int]Mapeo)
	for i, s := range t.slots {
		if s != nil {
			res[i] = *s
		}
	}
	return res
}
