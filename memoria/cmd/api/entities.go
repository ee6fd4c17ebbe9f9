package api

import "github.com/sisoputnfrba/tp-trapkernel/memoria/internal/marcos"

type Config struct {
	PortMemory  int    `json:"port_memory"`
	IpMemory    string `json:"ip_memory"`
	MemorySize  int    `json:"memory_size"`
	PageSize    int    `json:"page_size"`
	MemoryDelay int    `json:"memory_delay"`
	LogLevel    string `json:"log_level"`
	DumpPath    string `json:"dump_path"`
}

type MarcoResponse struct {
	Marco int `json:"marco"`
}

type InstalarPaginaRequest struct {
	PID       int    `json:"pid"`
	Direccion uint64 `json:"direccion"`
	Marco     int    `json:"marco"`
	Datos     []byte `json:"datos"`
	Usuario   bool   `json:"usuario"`
	Escritura bool   `json:"escritura"`
}

type TraduccionResponse struct {
	Presente bool `json:"presente"`
	marcos.Entrada
}

// PeticionAcceso es un acceso de la CPU a una dirección física ya traducida
type PeticionAcceso struct {
	PID       int    `json:"pid"`
	Direccion uint64 `json:"direccion"`
	Datos     []byte `json:"datos,omitempty"`   // Solo para WRITE
	Tamanio   int    `json:"tamanio,omitempty"` // Solo para READ
	Operacion string `json:"operacion"`         // "READ" o "WRITE"
}

type RespuestaAcceso struct {
	Datos   []byte `json:"datos,omitempty"` // Solo para READ
	Exito   bool   `json:"exito"`
	Mensaje string `json:"mensaje,omitempty"`
}

type PIDRequest struct {
	PID int `json:"pid"`
}
