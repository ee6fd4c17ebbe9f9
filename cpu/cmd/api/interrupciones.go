package api

import (
	"encoding/json"
	"net/http"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// RecibirInterrupcion entrega una interrupción de hardware (teclado, serial, disco) a esta CPU
func (h *Handler) RecibirInterrupcion(w http.ResponseWriter, r *http.Request) {
	var (
		ctx          = r.Context()
		interrupcion InterrupcionRequest
	)
	if err := json.NewDecoder(r.Body).Decode(&interrupcion); err != nil {
		h.Log.ErrorContext(ctx, "Error al decodificar interrupción",
			log.ErrAttr(err))
		http.Error(w, "error al decodificar mensaje", http.StatusBadRequest)
		return
	}

	//Log obligatorio: Interrupción recibida
	//“## Llega interrupción al puerto Interrupt”
	h.Log.InfoContext(ctx, "## Llega interrupción al puerto Interrupt",
		log.IntAttr("vector", int(interrupcion.Vector)),
	)

	resultado, err := h.Service.Interrumpir(ctx, interrupcion.Vector)
	if err != nil {
		h.responderError(w, r, err)
		return
	}
	h.responderJSON(w, r, InterrupcionResponse{Resultado: resultado})
}
