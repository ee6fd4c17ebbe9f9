package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// ConexionInicialKernel le informa al kernel el nombre, ip y puerto del dispositivo
func (h *Handler) ConexionInicialKernel() error {
	data := IOIdentificacion{
		Nombre: h.Nombre,
		IP:     h.Config.IpIo,
		Puerto: h.Config.PortIo,
	}

	body, err := json.Marshal(data)
	if err != nil {
		h.Log.Error("Error al serializar ioIdentificacion", log.ErrAttr(err))
		return err
	}

	url := fmt.Sprintf("http://%s:%d/io/conexion-inicial", h.Config.IpKernel, h.Config.PortKernel)
	resp, err := h.HttpClient.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		h.Log.Error("error enviando mensaje",
			log.ErrAttr(err),
			log.StringAttr("ip", h.Config.IpKernel),
			log.IntAttr("puerto", h.Config.PortKernel),
		)
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	h.Log.Info("Respuesta del servidor",
		log.StringAttr("status", resp.Status),
		log.StringAttr("body", string(body)),
	)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kernel returned non-OK status: %s", resp.Status)
	}
	return nil
}
