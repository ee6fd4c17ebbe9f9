package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// EjecutarPeticion simula la lectura del bloque y avisa el fin al kernel, que lo trata como la interrupción del disco
func (h *Handler) EjecutarPeticion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	peticion := PeticionDisco{}

	decoder := json.NewDecoder(r.Body)
	err := decoder.Decode(&peticion)
	if err != nil {
		h.Log.ErrorContext(ctx, "Error al decodificar la petición de disco",
			log.ErrAttr(err),
		)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Error al decodificar la petición de disco"))
		return
	}

	h.mutexDisco.Lock()
	defer h.mutexDisco.Unlock()

	//Log obligatorio: Inicio de IO
	//"## PID: <PID> - Inicio de IO - Bloque: <BLOQUE>"
	h.Log.Info(fmt.Sprintf("## PID: %d - Inicio de IO - Bloque: %d", peticion.PID, peticion.Bloque))

	// Simula el tiempo de acceso al disco
	time.Sleep(time.Duration(h.Config.DiskDelayMs) * time.Millisecond)

	//Log obligatorio: Fin de IO
	//"## PID: <PID> - Fin de IO".
	h.Log.Info(fmt.Sprintf("## PID: %d - Fin de IO", peticion.PID))

	err = h.notificarKernelFinIO(peticion)
	if err != nil {
		h.Log.Error("Error al notificar kernel fin de IO",
			log.ErrAttr(err),
			log.IntAttr("PID", peticion.PID),
		)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Error al notificar kernel"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("IO operation completed successfully"))
}

// notificarKernelFinIO envía el fin de la petición al kernel
func (h *Handler) notificarKernelFinIO(peticion PeticionDisco) error {
	body, err := json.Marshal(peticion)
	if err != nil {
		return fmt.Errorf("error serializing fin IO data: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/io/fin-peticion", h.Config.IpKernel, h.Config.PortKernel)
	resp, err := h.HttpClient.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error sending POST to kernel: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kernel returned non-OK status: %s", resp.Status)
	}

	h.Log.Debug("Kernel notificado exitosamente de fin de IO",
		log.IntAttr("PID", peticion.PID),
		log.StringAttr("dispositivo", h.Nombre),
		log.StringAttr("kernel_response", resp.Status),
	)

	return nil
}
