package archivos

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrOffsetInvalido = errors.New("offset fuera del archivo")

// Inodo guarda el contenido completo de un archivo en memoria. Leer no toma el lock: lo toma quien llama.
type Inodo struct {
	mu    sync.Mutex
	datos []byte

	// maxLectura > 0 recorta cada lectura a esa cantidad de bytes (simula un disco que devuelve lecturas cortas)
	maxLectura int
}

func NuevoInodo(datos []byte) *Inodo {
	copia := make([]byte, len(datos))
	copy(copia, datos)
	return &Inodo{datos: copia}
}

// DesdeArchivo carga un archivo del host como inodo
func DesdeArchivo(path string) (*Inodo, error) {
	datos, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no se pudo leer %s: %w", path, err)
	}
	return &Inodo{datos: datos}, nil
}

func (i *Inodo) Lock()   { i.mu.Lock() }
func (i *Inodo) Unlock() { i.mu.Unlock() }

func (i *Inodo) Tamanio() uint64 {
	return uint64(len(i.datos))
}

// Leer copia a dst desde off. Devuelve menos bytes que len(dst) si el archivo termina antes.
func (i *Inodo) Leer(dst []byte, off uint64) (int, error) {
	if off > uint64(len(i.datos)) {
		return 0, fmt.Errorf("%w: %d > %d", ErrOffsetInvalido, off, len(i.datos))
	}
	src := i.datos[off:]
	if i.maxLectura > 0 && len(src) > i.maxLectura {
		src = src[:i.maxLectura]
	}
	return copy(dst, src), nil
}

// LimitarLecturas hace que cada Leer devuelva como máximo n bytes
func (i *Inodo) LimitarLecturas(n int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.maxLectura = n
}
