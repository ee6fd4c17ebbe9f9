package vm

import (
	"context"
	"errors"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
)

const TamanioPagina = proc.TamanioPagina

var (
	ErrFueraDeMapeo    = errors.New("la dirección no pertenece a ningún mapeo")
	ErrSinMemoria      = errors.New("no hay marcos libres")
	ErrArchivoIlegible = errors.New("el descriptor del mapeo no está abierto o no es legible")
	ErrFueraDeArchivo  = errors.New("la página empieza después del fin del archivo")
	ErrLecturaCorta    = errors.New("lectura incompleta del archivo")
	ErrInstalacion     = errors.New("no se pudo instalar la página")
)

// RedondearAbajo alinea va al inicio de su página
func RedondearAbajo(va uint64) uint64 {
	return va &^ (TamanioPagina - 1)
}

// Pagina es un marco físico recién asignado. Datos siempre tiene TamanioPagina bytes y arranca en cero.
type Pagina struct {
	Marco int
	Datos []byte
}

type Permisos uint8

const (
	PermUsuario Permisos = 1 << iota
	PermEscritura
)

func (p Permisos) Usuario() bool   { return p&PermUsuario != 0 }
func (p Permisos) Escritura() bool { return p&PermEscritura != 0 }

// AsignadorMarcos entrega marcos físicos en cero
type AsignadorMarcos interface {
	Asignar(ctx context.Context) (*Pagina, error)
	Liberar(ctx context.Context, pag *Pagina) error
}

// Instalador agrega la traducción va -> marco en las tablas de páginas del espacio
type Instalador interface {
	Instalar(ctx context.Context, espacio proc.EspacioDeDirecciones, va uint64, pag *Pagina, perms Permisos) error
}
