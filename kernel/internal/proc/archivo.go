package proc

// Inodo es el almacenamiento detrás de un archivo. Leer se llama con el lock tomado por quien llama.
type Inodo interface {
	Lock()
	Unlock()
	Tamanio() uint64
	Leer(dst []byte, off uint64) (int, error)
}

// Archivo es una entrada de la tabla de descriptores del proceso
type Archivo struct {
	Legible    bool
	Escribible bool
	Inodo      Inodo
}
