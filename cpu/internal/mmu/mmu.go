package mmu

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru"

	"github.com/sisoputnfrba/tp-trapkernel/cpu/pkg/memoria"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// Traductor consulta la tabla de páginas de un proceso
type Traductor interface {
	Traducir(ctx context.Context, pid int, direccion uint64) (memoria.Traduccion, error)
}

type clave struct {
	pid    int
	pagina uint64
}

// MMU traduce direcciones lógicas a físicas. Las traducciones presentes se guardan en una TLB con reemplazo LRU.
type MMU struct {
	Log      *slog.Logger
	PageSize uint64
	Memoria  Traductor
	tlb      *lru.Cache // nil si la TLB está deshabilitada
}

func NewMMU(tlbEntries, pageSize int, mem Traductor, logger *slog.Logger) (*MMU, error) {
	m := &MMU{
		Log:      logger,
		PageSize: uint64(pageSize),
		Memoria:  mem,
	}
	if tlbEntries > 0 {
		tlb, err := lru.New(tlbEntries)
		if err != nil {
			return nil, fmt.Errorf("creando la TLB: %w", err)
		}
		m.tlb = tlb
	}
	return m, nil
}

// Traducir devuelve la dirección física de va. Si la página no está presente devuelve presente=false y la
// traducción vacía, que para la CPU es un page fault.
func (m *MMU) Traducir(ctx context.Context, pid int, va uint64) (uint64, memoria.Traduccion, bool, error) {
	pagina := va / m.PageSize
	offset := va % m.PageSize
	k := clave{pid: pid, pagina: pagina}

	if m.tlb != nil {
		if v, ok := m.tlb.Get(k); ok {
			t := v.(memoria.Traduccion)
			// Log obligatorio: TLB Hit
			// "PID: <PID> - TLB HIT - Pagina: <NUMERO_PAGINA>"
			m.Log.Info(fmt.Sprintf("PID: %d - TLB HIT - Pagina: %d", pid, pagina))
			return uint64(t.Marco)*m.PageSize + offset, t, true, nil
		}
		// Log obligatorio: TLB Miss
		// "PID: <PID> - TLB MISS - Pagina: <NUMERO_PAGINA>"
		m.Log.Info(fmt.Sprintf("PID: %d - TLB MISS - Pagina: %d", pid, pagina))
	}

	t, err := m.Memoria.Traducir(ctx, pid, va)
	if err != nil {
		return 0, memoria.Traduccion{}, false, err
	}
	if !t.Presente {
		m.Log.Debug("Página no presente",
			log.IntAttr("pid", pid),
			log.HexAttr("direccion", va),
		)
		return 0, memoria.Traduccion{}, false, nil
	}

	// Log obligatorio: Obtener Marco
	// "PID: <PID> - OBTENER MARCO - Página: <NUMERO_PAGINA> - Marco: <NUMERO_MARCO>"
	m.Log.Info(fmt.Sprintf("PID: %d - OBTENER MARCO - Página: %d - Marco: %d", pid, pagina, t.Marco))

	if m.tlb != nil {
		m.tlb.Add(k, t)
	}
	return uint64(t.Marco)*m.PageSize + offset, t, true, nil
}

// Invalidar saca de la TLB todas las entradas del proceso
func (m *MMU) Invalidar(pid int) {
	if m.tlb == nil {
		return
	}
	for _, k := range m.tlb.Keys() {
		if c, ok := k.(clave); ok && c.pid == pid {
			m.tlb.Remove(k)
		}
	}
}

// InvalidarRango saca de la TLB las páginas del proceso que tocan [base, base+longitud). Devuelve cuántas sacó.
func (m *MMU) InvalidarRango(pid int, base, longitud uint64) int {
	if m.tlb == nil || longitud == 0 {
		return 0
	}
	fin := base + longitud - 1
	if fin < base {
		fin = ^uint64(0)
	}
	primera, ultima := base/m.PageSize, fin/m.PageSize

	n := 0
	for _, k := range m.tlb.Keys() {
		c, ok := k.(clave)
		if !ok || c.pid != pid || c.pagina < primera || c.pagina > ultima {
			continue
		}
		m.tlb.Remove(k)
		n++
	}
	return n
}

// Entradas devuelve la cantidad de traducciones en la TLB
func (m *MMU) Entradas() int {
	if m.tlb == nil {
		return 0
	}
	return m.tlb.Len()
}
