package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// EnviarPeticionAIO le pide al módulo IO la lectura de un bloque. IO responde cuando ya avisó el fin de la petición.
func (h *Handler) EnviarPeticionAIO(io IOIdentificacion, peticion PeticionDisco) error {
	body, err := json.Marshal(peticion)
	if err != nil {
		return fmt.Errorf("error serializando la petición: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/kernel/disco", io.IP, io.Puerto)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		h.Log.Error("Error enviando petición a IO",
			log.ErrAttr(err),
			log.StringAttr("io", io.Nombre),
		)
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("IO respondió con status %d", resp.StatusCode)
	}

	h.Log.Debug("Respuesta de IO",
		log.StringAttr("status", resp.Status),
		log.StringAttr("body", string(body)),
	)
	return nil
}
