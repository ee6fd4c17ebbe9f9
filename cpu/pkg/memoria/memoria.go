package memoria

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

var ErrAccesoRechazado = errors.New("memoria rechazó el acceso")

// Memoria representa el cliente para comunicarse con el módulo de memoria
type Memoria struct {
	IP     string
	Puerto int
	Log    *slog.Logger
}

// Traduccion es la entrada de la tabla de páginas que devuelve memoria
type Traduccion struct {
	Presente  bool `json:"presente"`
	Marco     int  `json:"marco"`
	Usuario   bool `json:"usuario"`
	Escritura bool `json:"escritura"`
}

// PeticionAcceso representa una petición de acceso a una dirección física
type PeticionAcceso struct {
	PID       int    `json:"pid"`
	Direccion uint64 `json:"direccion"`
	Datos     []byte `json:"datos,omitempty"`   // Solo para WRITE
	Tamanio   int    `json:"tamanio,omitempty"` // Solo para READ
	Operacion string `json:"operacion"`         // "READ" o "WRITE"
}

// RespuestaAcceso representa la respuesta de memoria
type RespuestaAcceso struct {
	Datos   []byte `json:"datos,omitempty"` // Solo para READ
	Exito   bool   `json:"exito"`
	Mensaje string `json:"mensaje,omitempty"`
}

// NewMemoria crea una nueva instancia del cliente de memoria
func NewMemoria(ip string, puerto int, logger *slog.Logger) *Memoria {
	return &Memoria{
		IP:     ip,
		Puerto: puerto,
		Log:    logger,
	}
}

// Traducir consulta la tabla de páginas del proceso
func (m *Memoria) Traducir(ctx context.Context, pid int, direccion uint64) (Traduccion, error) {
	var traduccion Traduccion

	url := fmt.Sprintf("http://%s:%d/cpu/traduccion?pid=%d&direccion=%d", m.IP, m.Puerto, pid, direccion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return traduccion, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		m.Log.Error("Error enviando petición de traducción",
			log.StringAttr("ip", m.IP),
			log.IntAttr("puerto", m.Puerto),
			log.IntAttr("pid", pid),
			log.ErrAttr(err),
		)
		return traduccion, fmt.Errorf("error al enviar petición: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return traduccion, fmt.Errorf("memoria respondió con error: %s", resp.Status)
	}

	if err = json.NewDecoder(resp.Body).Decode(&traduccion); err != nil {
		return traduccion, fmt.Errorf("error al decodificar respuesta: %w", err)
	}
	return traduccion, nil
}

// Read lee tamanio bytes desde una dirección física
func (m *Memoria) Read(ctx context.Context, pid int, fisica uint64, tamanio int) ([]byte, error) {
	respuesta, err := m.acceder(ctx, PeticionAcceso{
		PID:       pid,
		Direccion: fisica,
		Tamanio:   tamanio,
		Operacion: "READ",
	})
	if err != nil {
		return nil, err
	}
	return respuesta.Datos, nil
}

// Write escribe datos en una dirección física
func (m *Memoria) Write(ctx context.Context, pid int, fisica uint64, datos []byte) error {
	_, err := m.acceder(ctx, PeticionAcceso{
		PID:       pid,
		Direccion: fisica,
		Datos:     datos,
		Operacion: "WRITE",
	})
	return err
}

func (m *Memoria) acceder(ctx context.Context, peticion PeticionAcceso) (RespuestaAcceso, error) {
	var respuesta RespuestaAcceso

	body, err := json.Marshal(peticion)
	if err != nil {
		return respuesta, fmt.Errorf("error al serializar petición: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/cpu/acceso", m.IP, m.Puerto)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return respuesta, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		m.Log.Error("Error enviando petición de acceso",
			log.StringAttr("ip", m.IP),
			log.IntAttr("puerto", m.Puerto),
			log.StringAttr("operacion", peticion.Operacion),
			log.ErrAttr(err),
		)
		return respuesta, fmt.Errorf("error al enviar petición: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return respuesta, fmt.Errorf("memoria respondió con error: %s", resp.Status)
	}
	if err = json.NewDecoder(resp.Body).Decode(&respuesta); err != nil {
		return respuesta, fmt.Errorf("error al decodificar respuesta: %w", err)
	}
	if !respuesta.Exito {
		return respuesta, fmt.Errorf("%w: %s", ErrAccesoRechazado, respuesta.Mensaje)
	}
	return respuesta, nil
}
