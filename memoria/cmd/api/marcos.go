package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sisoputnfrba/tp-trapkernel/memoria/internal/marcos"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// AsignarMarco reserva un marco libre para el kernel. Sin marcos responde 507.
func (h *Handler) AsignarMarco(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	marco, err := h.Memoria.Asignar()
	if errors.Is(err, marcos.ErrSinMarcos) {
		h.Log.WarnContext(ctx, "No hay marcos libres")
		http.Error(w, err.Error(), http.StatusInsufficientStorage)
		return
	}

	h.Log.DebugContext(ctx, "Marco asignado",
		log.IntAttr("marco", marco),
		log.IntAttr("libres", h.Memoria.MarcosLibres()),
	)
	h.responderJSON(w, r, MarcoResponse{Marco: marco})
}

func (h *Handler) LiberarMarco(w http.ResponseWriter, r *http.Request) {
	marco, err := strconv.Atoi(chi.URLParam(r, "marco"))
	if err != nil {
		http.Error(w, "marco inválido", http.StatusBadRequest)
		return
	}

	if err = h.Memoria.Liberar(marco); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	h.Log.DebugContext(r.Context(), "Marco liberado", log.IntAttr("marco", marco))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// InstalarPagina copia el contenido al marco y agrega la traducción a la tabla del proceso
func (h *Handler) InstalarPagina(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req InstalarPaginaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Log.ErrorContext(ctx, "Error al decodificar la página", log.ErrAttr(err))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.retardo()
	err := h.Memoria.Instalar(req.PID, req.Direccion, req.Datos, marcos.Entrada{
		Marco:     req.Marco,
		Usuario:   req.Usuario,
		Escritura: req.Escritura,
	})
	switch {
	case errors.Is(err, marcos.ErrYaMapeada):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	/* Log obligatorio: Instalación de página
	“## PID: <PID> - Página instalada - Dir. Lógica: <DIRECCIÓN> - Marco: <MARCO>”*/
	h.Log.Info(fmt.Sprintf("## PID: %d - Página instalada - Dir. Lógica: %#x - Marco: %d", req.PID, req.Direccion, req.Marco))

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// LiberarPaginas quita las páginas de ?pid en [base, base+longitud) y libera sus marcos
func (h *Handler) LiberarPaginas(w http.ResponseWriter, r *http.Request) {
	var (
		query       = r.URL.Query()
		pid, errPID = strconv.Atoi(query.Get("pid"))
		base, errB  = strconv.ParseUint(query.Get("base"), 0, 64)
		long, errL  = strconv.ParseUint(query.Get("longitud"), 0, 64)
	)
	if err := errors.Join(errPID, errB, errL); err != nil {
		h.Log.Error("Parámetros inválidos al liberar páginas", log.ErrAttr(err))
		http.Error(w, "parámetros inválidos", http.StatusBadRequest)
		return
	}

	liberadas := h.Memoria.LiberarRango(pid, base, long)
	h.Log.DebugContext(r.Context(), "Páginas liberadas",
		log.IntAttr("pid", pid),
		log.HexAttr("base", base),
		log.IntAttr("liberadas", liberadas),
	)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
