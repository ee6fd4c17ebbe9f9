package api

type Config struct {
	IpCpu      string `json:"ip_cpu"`
	PortCpu    int    `json:"port_cpu"`
	NumeroCpu  int    `json:"numero_cpu"`
	IpKernel   string `json:"ip_kernel"`
	PortKernel int    `json:"port_kernel"`
	IpMemory   string `json:"ip_memory"`
	PortMemory int    `json:"port_memory"`
	TlbEntries int    `json:"tlb_entries"`
	PageSize   int    `json:"page_size"`
	TimerMs    int    `json:"timer_ms"` // 0 deshabilita el timer
	LogLevel   string `json:"log_level"`
}

type Proceso struct {
	PID int `json:"pid"`
}

// AccesoRequest es un acceso a memoria del proceso. Con kernel=true lo hace el kernel en su nombre.
type AccesoRequest struct {
	PID       int    `json:"pid"`
	Direccion uint64 `json:"direccion"`
	Escritura bool   `json:"escritura"`
	Datos     []byte `json:"datos,omitempty"`
	Tamanio   int    `json:"tamanio,omitempty"`
	Kernel    bool   `json:"kernel"`
}

type AccesoResponse struct {
	Datos []byte `json:"datos,omitempty"`
}

type SyscallRequest struct {
	PID     int       `json:"pid"`
	Llamada uint32    `json:"llamada"`
	Args    [3]uint64 `json:"args"`
}

type SyscallResponse struct {
	Retorno int64 `json:"retorno"`
}

type InterrupcionRequest struct {
	Vector uint32 `json:"vector"`
}

type InterrupcionResponse struct {
	Resultado string `json:"resultado"`
}

// InvalidarTLBRequest lo manda el kernel después de desmapear un rango del proceso
type InvalidarTLBRequest struct {
	PID      int    `json:"pid"`
	Base     uint64 `json:"base"`
	Longitud uint64 `json:"longitud"`
}

type InvalidarTLBResponse struct {
	Invalidadas int `json:"invalidadas"`
}
