package api

import (
	"encoding/json"
	"net/http"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// InvalidarTLB saca de la TLB las traducciones de un rango que el kernel acaba de desmapear
func (h *Handler) InvalidarTLB(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req InvalidarTLBRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Log.ErrorContext(ctx, "Error al decodificar el pedido de invalidación", log.ErrAttr(err))
		http.Error(w, "error al decodificar mensaje", http.StatusBadRequest)
		return
	}

	n := h.Service.MMU.InvalidarRango(req.PID, req.Base, req.Longitud)
	h.Log.DebugContext(ctx, "TLB invalidada",
		log.IntAttr("pid", req.PID),
		log.HexAttr("base", req.Base),
		log.HexAttr("longitud", req.Longitud),
		log.IntAttr("invalidadas", n),
	)
	h.responderJSON(w, r, InvalidarTLBResponse{Invalidadas: n})
}
