package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/despacho"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/trampas"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// RecibirTrampa es la entrada al kernel de una CPU: arma el contexto y llama al despachador
func (h *Handler) RecibirTrampa(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req TrampaRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Log.ErrorContext(ctx, "Error al decodificar la trampa", log.ErrAttr(err))
		http.Error(w, "Error al decodificar la trampa", http.StatusBadRequest)
		return
	}

	var p *proc.Proceso
	if req.PID != 0 {
		p = h.Procesos.Buscar(req.PID)
		if p == nil {
			// El proceso ya finalizó y se liberó, pero la interrupción del dispositivo se atiende igual
			res, err := h.Despachador.DespacharFinalizado(ctx, req.Trampa)
			if res == despacho.Panico {
				h.responderResultado(w, r, res, err, nil)
				return
			}
			h.responderJSON(w, r, http.StatusNotFound, TrampaResponse{Resultado: res.String()})
			return
		}
	}

	h.Log.DebugContext(ctx, "Trampa recibida",
		log.IntAttr("pid", req.PID),
		log.StringAttr("trampa", req.Trampa.Nombre()),
		log.IntAttr("cpu", req.Trampa.CPU),
		log.StringAttr("privilegio", req.Trampa.Privilegio.String()),
	)

	res, err := h.Despachador.Despachar(ctx, req.Trampa, p)
	h.responderResultado(w, r, res, err, p)
}

// RetornoLlamada lo invoca la CPU al terminar una operación en modo kernel
func (h *Handler) RetornoLlamada(w http.ResponseWriter, r *http.Request) {
	var req PIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error al decodificar el pid", http.StatusBadRequest)
		return
	}

	p := h.Procesos.Buscar(req.PID)
	if p == nil {
		h.responderJSON(w, r, http.StatusNotFound, TrampaResponse{Resultado: despacho.Terminado.String()})
		return
	}

	res := h.Despachador.RetornoLlamada(r.Context(), p)
	h.responderJSON(w, r, http.StatusOK, TrampaResponse{Resultado: res.String()})
}

// FinPeticionIO convierte el aviso del módulo IO en la interrupción del disco principal
func (h *Handler) FinPeticionIO(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var fin FinPeticionIO

	if err := json.NewDecoder(r.Body).Decode(&fin); err != nil {
		h.Log.ErrorContext(ctx, "Error al decodificar el fin de petición", log.ErrAttr(err))
		http.Error(w, "Error al decodificar el fin de petición", http.StatusBadRequest)
		return
	}

	tf := trampas.Trampa{
		Numero:     trampas.VectorDisco,
		Privilegio: trampas.PrivilegioKernel,
		CPU:        fin.CPU,
	}
	res, err := h.Despachador.Despachar(ctx, tf, nil)
	h.responderResultado(w, r, res, err, nil)
}

func (h *Handler) responderResultado(w http.ResponseWriter, r *http.Request, res despacho.Resultado, err error, p *proc.Proceso) {
	if res == despacho.Panico {
		resp := TrampaResponse{Resultado: res.String()}
		if err != nil {
			resp.Error = err.Error()
		}
		var errPanico *despacho.ErrPanico
		if errors.As(err, &errPanico) {
			h.Log.Error(fmt.Sprintf("## Sistema detenido: %s", errPanico.Error()))
		}
		h.responderJSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}

	resp := TrampaResponse{Resultado: res.String()}
	if p != nil {
		resp.Retorno = p.Retorno()
	}
	h.responderJSON(w, r, http.StatusOK, resp)
}
