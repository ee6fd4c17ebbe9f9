package api

import (
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/trampas"
)

type Config struct {
	IpKernel          string `json:"ip_kernel"`
	PortKernel        int    `json:"port_kernel"`
	IpMemory          string `json:"ip_memory"`
	PortMemory        int    `json:"port_memory"`
	CantidadCPUs      int    `json:"cantidad_cpus"`
	CPUDuenioTicks    int    `json:"cpu_duenio_ticks"`
	LogLevel          string `json:"log_level"`
	RegistroPath      string `json:"registro_path"`
	RegistroRecientes int    `json:"registro_recientes"`
}

type IOIdentificacion struct {
	Nombre string `json:"nombre"`
	IP     string `json:"ip"`
	Puerto int    `json:"puerto"`
}

type CPUIdentificacion struct {
	IP     string `json:"ip"`
	Puerto int    `json:"puerto"`
	ID     string `json:"id"`
}

// TrampaRequest es lo que envía una CPU al entrar al kernel. PID 0 indica que la CPU estaba ociosa.
type TrampaRequest struct {
	PID    int            `json:"pid"`
	Trampa trampas.Trampa `json:"trampa"`
}

type TrampaResponse struct {
	Resultado string `json:"resultado"`
	Retorno   int64  `json:"retorno"`
	Error     string `json:"error,omitempty"`
}

type PIDRequest struct {
	PID int `json:"pid"`
}

type FinPeticionIO struct {
	PID    int `json:"pid"`
	Bloque int `json:"bloque"`
	CPU    int `json:"cpu"`
}

type PeticionDisco struct {
	PID    int `json:"pid"`
	Bloque int `json:"bloque"`
	CPU    int `json:"cpu"`
}

type CrearProcesoRequest struct {
	Nombre string `json:"nombre"`
}

type ProcesoResponse struct {
	PID    int                `json:"pid"`
	Nombre string             `json:"nombre"`
	Estado string             `json:"estado"`
	Killed bool               `json:"killed"`
	Mapeos map[int]proc.Mapeo `json:"mapeos"`
}

// AbrirArchivoRequest abre un archivo con el contenido indicado o, si viene Path, con el de un archivo del host
type AbrirArchivoRequest struct {
	Contenido  []byte `json:"contenido"`
	Path       string `json:"path"`
	Legible    bool   `json:"legible"`
	Escribible bool   `json:"escribible"`
}

type FDResponse struct {
	FD int `json:"fd"`
}

type SlotResponse struct {
	Slot int `json:"slot"`
}

type TicksResponse struct {
	Ticks uint64 `json:"ticks"`
}

type ConsolaRequest struct {
	Datos string `json:"datos"`
}
