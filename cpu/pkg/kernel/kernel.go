package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// Resultados posibles de una trampa, como los devuelve el kernel
const (
	Reanudar  = "reanudar"
	Terminado = "terminado"
	Panico    = "panico"
)

var ErrSistemaDetenido = errors.New("el kernel está detenido")

// Números de trampa que genera la CPU
const (
	TrampaPageFault uint32 = 14
	TrampaSyscall   uint32 = 64
	VectorTimer     uint32 = 32
)

// Bits del código de error de un page fault
const (
	ErrPresente  uint32 = 1 << 0
	ErrEscritura uint32 = 1 << 1
	ErrUsuario   uint32 = 1 << 2
)

const (
	PrivilegioKernel  uint8 = 0
	PrivilegioUsuario uint8 = 3
)

type Registros struct {
	Llamada uint32    `json:"llamada"`
	Args    [3]uint64 `json:"args"`
}

// Trampa es el registro que arma la CPU al entrar al kernel
type Trampa struct {
	Numero         uint32    `json:"numero"`
	CodigoError    uint32    `json:"codigo_error"`
	Privilegio     uint8     `json:"privilegio"`
	CPU            int       `json:"cpu"`
	IP             uint64    `json:"ip"`
	DireccionFallo uint64    `json:"direccion_fallo"`
	Software       bool      `json:"software"`
	Registros      Registros `json:"registros"`
}

type TrampaRequest struct {
	PID    int    `json:"pid"`
	Trampa Trampa `json:"trampa"`
}

type TrampaResponse struct {
	Resultado string `json:"resultado"`
	Retorno   int64  `json:"retorno"`
	Error     string `json:"error,omitempty"`
}

type Kernel struct {
	IP     string
	Puerto int
	Log    *slog.Logger
}

func NewKernel(ip string, puerto int, logger *slog.Logger) *Kernel {
	return &Kernel{
		IP:     ip,
		Puerto: puerto,
		Log:    logger,
	}
}

// EnviarTrampa entra al kernel con la trampa tf. Un 404 significa que el proceso ya no existe.
func (k *Kernel) EnviarTrampa(ctx context.Context, pid int, tf Trampa) (TrampaResponse, error) {
	return k.enviar(ctx, "/cpu/trampa", TrampaRequest{PID: pid, Trampa: tf})
}

// RetornoLlamada avisa que terminó la operación en modo kernel del proceso
func (k *Kernel) RetornoLlamada(ctx context.Context, pid int) (TrampaResponse, error) {
	return k.enviar(ctx, "/cpu/retorno-llamada", map[string]int{"pid": pid})
}

// ConexionInicial registra la CPU en el kernel
func (k *Kernel) ConexionInicial(ctx context.Context, ip string, puerto int, id string) error {
	body, err := json.Marshal(map[string]any{
		"ip":     ip,
		"puerto": puerto,
		"id":     id,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s:%d/cpu/conexion-inicial", k.IP, k.Puerto)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		k.Log.ErrorContext(ctx, "Error enviando identificacion a Kernel",
			log.StringAttr("ip", k.IP),
			log.IntAttr("puerto", k.Puerto),
			log.ErrAttr(err),
		)
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("el kernel rechazó la conexión: %s", resp.Status)
	}
	return nil
}

func (k *Kernel) enviar(ctx context.Context, path string, payload any) (TrampaResponse, error) {
	var respuesta TrampaResponse

	body, err := json.Marshal(payload)
	if err != nil {
		return respuesta, err
	}

	url := fmt.Sprintf("http://%s:%d%s", k.IP, k.Puerto, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return respuesta, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		k.Log.ErrorContext(ctx, "Error enviando trampa al Kernel",
			log.StringAttr("ip", k.IP),
			log.IntAttr("puerto", k.Puerto),
			log.StringAttr("path", path),
			log.ErrAttr(err),
		)
		return respuesta, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err = json.NewDecoder(resp.Body).Decode(&respuesta); err != nil {
		return respuesta, fmt.Errorf("respuesta del kernel inválida (%s): %w", resp.Status, err)
	}

	if respuesta.Resultado == Panico {
		return respuesta, fmt.Errorf("%w: %s", ErrSistemaDetenido, respuesta.Error)
	}
	return respuesta, nil
}
