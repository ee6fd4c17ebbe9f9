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

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/vm"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

var (
	ErrSinMarcos       = errors.New("memoria sin marcos libres")
	ErrPaginaMapeada   = errors.New("la página ya está mapeada")
	ErrPeticionErronea = errors.New("memoria rechazó la petición")
)

// Memoria es el cliente HTTP del módulo de memoria. Implementa el asignador de marcos y el instalador de páginas.
type Memoria struct {
	IP     string
	Puerto int
	Log    *slog.Logger
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

func NewMemoria(ip string, puerto int, logger *slog.Logger) *Memoria {
	return &Memoria{
		IP:     ip,
		Puerto: puerto,
		Log:    logger,
	}
}

func (m *Memoria) url(path string) string {
	return fmt.Sprintf("http://%s:%d%s", m.IP, m.Puerto, path)
}

func (m *Memoria) enviar(ctx context.Context, method, url string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		m.Log.Error("Error al comunicarse con memoria",
			log.ErrAttr(err),
			log.StringAttr("ip", m.IP),
			log.IntAttr("puerto", m.Puerto),
			log.StringAttr("url", url),
		)
		return nil, err
	}
	return resp, nil
}

// Asignar pide un marco libre. Memoria lo entrega en cero, así que la página local arranca en cero también.
func (m *Memoria) Asignar(ctx context.Context) (*vm.Pagina, error) {
	resp, err := m.enviar(ctx, http.MethodPost, m.url("/kernel/marcos"), nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusInsufficientStorage:
		return nil, ErrSinMarcos
	default:
		return nil, fmt.Errorf("%w: status %d", ErrPeticionErronea, resp.StatusCode)
	}

	var marco MarcoResponse
	if err := json.NewDecoder(resp.Body).Decode(&marco); err != nil {
		return nil, fmt.Errorf("respuesta de memoria inválida: %w", err)
	}

	m.Log.Debug("Marco asignado", log.IntAttr("marco", marco.Marco))
	return &vm.Pagina{Marco: marco.Marco, Datos: make([]byte, vm.TamanioPagina)}, nil
}

func (m *Memoria) Liberar(ctx context.Context, pag *vm.Pagina) error {
	resp, err := m.enviar(ctx, http.MethodDelete, m.url(fmt.Sprintf("/kernel/marcos/%d", pag.Marco)), nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrPeticionErronea, resp.StatusCode)
	}
	return nil
}

// Instalar escribe el contenido de la página en el marco y agrega la traducción va -> marco
func (m *Memoria) Instalar(ctx context.Context, espacio proc.EspacioDeDirecciones, va uint64, pag *vm.Pagina, perms vm.Permisos) error {
	req := InstalarPaginaRequest{
		PID:       espacio.PID,
		Direccion: va,
		Marco:     pag.Marco,
		Datos:     pag.Datos,
		Usuario:   perms.Usuario(),
		Escritura: perms.Escritura(),
	}

	resp, err := m.enviar(ctx, http.MethodPost, m.url("/kernel/paginas"), req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		return ErrPaginaMapeada
	default:
		return fmt.Errorf("%w: status %d", ErrPeticionErronea, resp.StatusCode)
	}
}

// LiberarRango desinstala las páginas de [base, base+longitud) y libera sus marcos
func (m *Memoria) LiberarRango(ctx context.Context, espacio proc.EspacioDeDirecciones, base, longitud uint64) error {
	url := m.url(fmt.Sprintf("/kernel/paginas?pid=%d&base=%d&longitud=%d", espacio.PID, base, longitud))
	resp, err := m.enviar(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrPeticionErronea, resp.StatusCode)
	}
	return nil
}

func (m *Memoria) FinalizarProceso(ctx context.Context, pid int) (int, error) {
	resp, err := m.enviar(ctx, http.MethodPost, m.url("/kernel/fin-proceso"), map[string]int{"pid": pid})
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()

	return resp.StatusCode, nil
}
