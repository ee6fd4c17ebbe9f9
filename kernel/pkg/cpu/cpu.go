package cpu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// Cpu es una CPU conectada al kernel. Estado es true mientras está libre.
type Cpu struct {
	IP     string
	Puerto int
	ID     string
	Estado bool
	PID    int
	Log    *slog.Logger
}

type ProcesoCpu struct {
	PID int `json:"pid"`
}

// InvalidarTLBRequest pide sacar de la TLB las páginas de [Base, Base+Longitud) del proceso
type InvalidarTLBRequest struct {
	PID      int    `json:"pid"`
	Base     uint64 `json:"base"`
	Longitud uint64 `json:"longitud"`
}

func NewCpu(ip string, puerto int, id string, logger *slog.Logger) *Cpu {
	return &Cpu{
		IP:     ip,
		Puerto: puerto,
		ID:     id,
		Estado: true,
		Log:    logger,
	}
}

// AsignarProceso le indica a la CPU qué proceso está ejecutando. pid 0 la deja ociosa.
func (c *Cpu) AsignarProceso(pid int) error {
	body, err := json.Marshal(ProcesoCpu{PID: pid})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s:%d/cpu/proceso", c.IP, c.Puerto)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		c.Log.Error("Error enviando proceso a la CPU",
			log.ErrAttr(err),
			log.StringAttr("cpu_id", c.ID),
			log.StringAttr("ip", c.IP),
			log.IntAttr("puerto", c.Puerto),
		)
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("la CPU %s respondió con status %d", c.ID, resp.StatusCode)
	}

	c.PID = pid
	c.Log.Debug("Proceso asignado a la CPU",
		log.StringAttr("cpu_id", c.ID),
		log.IntAttr("pid", pid),
	)
	return nil
}

// InvalidarTLB le pide a la CPU que olvide las traducciones de un rango que se acaba de desmapear
func (c *Cpu) InvalidarTLB(ctx context.Context, pid int, base, longitud uint64) error {
	body, err := json.Marshal(InvalidarTLBRequest{PID: pid, Base: base, Longitud: longitud})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s:%d/cpu/tlb/invalidar", c.IP, c.Puerto)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.Log.Error("Error invalidando la TLB de la CPU",
			log.ErrAttr(err),
			log.StringAttr("cpu_id", c.ID),
			log.IntAttr("pid", pid),
		)
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("la CPU %s respondió con status %d", c.ID, resp.StatusCode)
	}
	return nil
}
