package api

type Config struct {
	IpKernel    string `json:"ip_kernel"`
	PortKernel  int    `json:"port_kernel"`
	PortIo      int    `json:"port_io"`
	IpIo        string `json:"ip_io"`
	DiskDelayMs int    `json:"disk_delay_ms"`
	LogLevel    string `json:"log_level"`
}

type IOIdentificacion struct {
	Nombre string `json:"nombre"`
	IP     string `json:"ip"`
	Puerto int    `json:"puerto"`
}

// PeticionDisco es la lectura de un bloque. CPU es la CPU a la que se enruta la interrupción de fin.
type PeticionDisco struct {
	PID    int `json:"pid"`
	Bloque int `json:"bloque"`
	CPU    int `json:"cpu"`
}
