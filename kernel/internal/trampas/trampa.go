package trampas

import "fmt"

// Números de trampa (vectores). Los IRQ de hardware se numeran a partir de IRQ0.
const (
	TrampaDivision      uint32 = 0
	TrampaDebug         uint32 = 1
	TrampaBreakpoint    uint32 = 3
	TrampaInvalidOpcode uint32 = 6
	TrampaProteccion    uint32 = 13 // General protection fault
	TrampaPageFault     uint32 = 14

	TrampaSyscall uint32 = 64

	IRQ0 uint32 = 32

	IRQTimer   uint32 = 0
	IRQTeclado uint32 = 1
	IRQSerial  uint32 = 4
	IRQ7       uint32 = 7
	IRQDisco   uint32 = 14
	IRQDisco2  uint32 = 15
	IRQEspuria uint32 = 31
	IRQError   uint32 = 19
)

const CantVectores = 256

const (
	VectorTimer   = IRQ0 + IRQTimer
	VectorTeclado = IRQ0 + IRQTeclado
	VectorSerial  = IRQ0 + IRQSerial
	VectorIRQ7    = IRQ0 + IRQ7
	VectorDisco   = IRQ0 + IRQDisco
	VectorDisco2  = IRQ0 + IRQDisco2
	VectorEspurio = IRQ0 + IRQEspuria
)

// Bits del código de error de un page fault
const (
	ErrPresente  uint32 = 1 << 0
	ErrEscritura uint32 = 1 << 1
	ErrUsuario   uint32 = 1 << 2
)

type Privilegio uint8

const (
	PrivilegioKernel  Privilegio = 0
	PrivilegioUsuario Privilegio = 3
)

func (p Privilegio) String() string {
	if p == PrivilegioUsuario {
		return "usuario"
	}
	return "kernel"
}

// Trampa es el registro que arma la entrada de la trampa. No se modifica mientras dura el manejo.
type Trampa struct {
	Numero         uint32     `json:"numero"`
	CodigoError    uint32     `json:"codigo_error"`
	Privilegio     Privilegio `json:"privilegio"`
	CPU            int        `json:"cpu"`
	IP             uint64     `json:"ip"`              // instrucción que produjo la trampa
	DireccionFallo uint64     `json:"direccion_fallo"` // sólo tiene sentido en page faults
	Software       bool       `json:"software"`        // generada con una instrucción int n
	Registros      Registros  `json:"registros"`
}

// Registros son los registros de usuario que lee una syscall: el número de llamada y sus argumentos
type Registros struct {
	Llamada uint32    `json:"llamada"`
	Args    [3]uint64 `json:"args"`
}

func (t Trampa) DesdeUsuario() bool {
	return t.Privilegio == PrivilegioUsuario
}

func (t Trampa) EsTimer() bool {
	return t.Numero == VectorTimer
}

func (t Trampa) Nombre() string {
	return Nombre(t.Numero)
}

// Nombre devuelve un nombre legible para los logs
func Nombre(numero uint32) string {
	switch numero {
	case TrampaDivision:
		return "DIVISION"
	case TrampaDebug:
		return "DEBUG"
	case TrampaBreakpoint:
		return "BREAKPOINT"
	case TrampaInvalidOpcode:
		return "INVALID_OPCODE"
	case TrampaProteccion:
		return "GPF"
	case TrampaPageFault:
		return "PAGE_FAULT"
	case TrampaSyscall:
		return "SYSCALL"
	case VectorTimer:
		return "IRQ_TIMER"
	case VectorTeclado:
		return "IRQ_TECLADO"
	case VectorSerial:
		return "IRQ_SERIAL"
	case VectorDisco:
		return "IRQ_DISCO"
	case VectorDisco2:
		return "IRQ_DISCO2"
	case VectorIRQ7, VectorEspurio:
		return "IRQ_ESPURIA"
	default:
		return fmt.Sprintf("TRAMPA_%d", numero)
	}
}
