package vm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

type ManejadorFallos struct {
	Log        *slog.Logger
	Marcos     AsignadorMarcos
	Instalador Instalador
}

func NewManejadorFallos(logger *slog.Logger, marcos AsignadorMarcos, instalador Instalador) *ManejadorFallos {
	return &ManejadorFallos{
		Log:        logger,
		Marcos:     marcos,
		Instalador: instalador,
	}
}

// ManejarFallo resuelve un fallo de página de p en va instalando exactamente una página.
// Si devuelve error el proceso ya quedó marcado como killed; nunca es un error del sistema.
func (m *ManejadorFallos) ManejarFallo(ctx context.Context, p *proc.Proceso, va uint64) error {
	mapeo, slot, ok := p.Mapeos.Buscar(va)
	if !ok {
		return m.matar(p, va, ErrFueraDeMapeo)
	}

	base := RedondearAbajo(va)

	pag, err := m.Marcos.Asignar(ctx)
	if err != nil {
		return m.matar(p, va, fmt.Errorf("%w: %v", ErrSinMemoria, err))
	}

	if !mapeo.Anonimo {
		if err := m.cargarDesdeArchivo(p, mapeo, base, pag); err != nil {
			m.liberar(ctx, p, pag)
			return m.matar(p, va, err)
		}
	}

	if err := m.Instalador.Instalar(ctx, p.Espacio, base, pag, PermUsuario|PermEscritura); err != nil {
		m.liberar(ctx, p, pag)
		return m.matar(p, va, fmt.Errorf("%w: %v", ErrInstalacion, err))
	}

	m.Log.Info(fmt.Sprintf("## (%d) Página instalada - Dirección: %#x - Marco: %d", p.PID, base, pag.Marco))
	m.Log.Debug("Fallo de página resuelto",
		log.IntAttr("pid", p.PID),
		log.IntAttr("slot", slot),
		log.HexAttr("direccion_fallo", va),
		log.BoolAttr("anonimo", mapeo.Anonimo),
	)
	return nil
}

// cargarDesdeArchivo lee la porción del archivo que cubre la página. Lo que sobra queda en cero.
func (m *ManejadorFallos) cargarDesdeArchivo(p *proc.Proceso, mapeo proc.Mapeo, base uint64, pag *Pagina) error {
	arch := p.Archivo(mapeo.FD)
	if arch == nil || !arch.Legible || arch.Inodo == nil {
		return fmt.Errorf("%w: fd %d", ErrArchivoIlegible, mapeo.FD)
	}

	// La base del mapeo está alineada, así que base >= mapeo.Base
	offset := base - mapeo.Base

	arch.Inodo.Lock()
	defer arch.Inodo.Unlock()

	tamanio := arch.Inodo.Tamanio()
	if offset >= tamanio {
		return fmt.Errorf("%w: offset %#x, tamaño %#x", ErrFueraDeArchivo, offset, tamanio)
	}

	aLeer := min(tamanio-offset, TamanioPagina)
	n, err := arch.Inodo.Leer(pag.Datos[:aLeer], offset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLecturaCorta, err)
	}
	if uint64(n) != aLeer {
		return fmt.Errorf("%w: %d de %d bytes", ErrLecturaCorta, n, aLeer)
	}
	return nil
}

func (m *ManejadorFallos) liberar(ctx context.Context, p *proc.Proceso, pag *Pagina) {
	if err := m.Marcos.Liberar(ctx, pag); err != nil {
		m.Log.Error("No se pudo liberar el marco",
			log.ErrAttr(err),
			log.IntAttr("pid", p.PID),
			log.IntAttr("marco", pag.Marco),
		)
	}
}

func (m *ManejadorFallos) matar(p *proc.Proceso, va uint64, causa error) error {
	p.Kill()
	m.Log.Info(fmt.Sprintf("## (%d) Proceso marcado para finalizar - Fallo de página en %#x", p.PID, va),
		log.ErrAttr(causa),
	)
	return causa
}
