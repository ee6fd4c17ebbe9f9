package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/dispositivos"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

func (h *Handler) ObtenerTicks(w http.ResponseWriter, r *http.Request) {
	h.responderJSON(w, r, http.StatusOK, TicksResponse{Ticks: h.Ticks.Valor()})
}

// EsperarTicks bloquea hasta que el contador llegue a ?hasta=N o se corte la conexión
func (h *Handler) EsperarTicks(w http.ResponseWriter, r *http.Request) {
	hasta, err := strconv.ParseUint(r.URL.Query().Get("hasta"), 10, 64)
	if err != nil {
		http.Error(w, "hasta inválido", http.StatusBadRequest)
		return
	}

	if err := h.Ticks.Esperar(r.Context(), hasta); err != nil {
		return
	}
	h.responderJSON(w, r, http.StatusOK, TicksResponse{Ticks: h.Ticks.Valor()})
}

func (h *Handler) TrampasRecientes(w http.ResponseWriter, r *http.Request) {
	h.responderJSON(w, r, http.StatusOK, h.Registro.Recientes())
}

func (h *Handler) ResumenTrampas(w http.ResponseWriter, r *http.Request) {
	conteo, err := h.Registro.ContarPorTipo(r.Context())
	if err != nil {
		h.Log.ErrorContext(r.Context(), "Error consultando el registro", log.ErrAttr(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make(map[string]int, len(conteo))
	for tipo, n := range conteo {
		resp[string(tipo)] = n
	}
	h.responderJSON(w, r, http.StatusOK, resp)
}

// IngresarConsola deja datos en la entrada del dispositivo; se consumen cuando llega su interrupción
func (h *Handler) IngresarConsola(w http.ResponseWriter, r *http.Request) {
	c, ok := h.consolaDeURL(w, r)
	if !ok {
		return
	}

	var req ConsolaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error al decodificar los datos", http.StatusBadRequest)
		return
	}
	c.Ingresar([]byte(req.Datos))
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) LeerConsola(w http.ResponseWriter, r *http.Request) {
	c, ok := h.consolaDeURL(w, r)
	if !ok {
		return
	}
	h.responderJSON(w, r, http.StatusOK, ConsolaRequest{Datos: string(c.Leer())})
}

func (h *Handler) consolaDeURL(w http.ResponseWriter, r *http.Request) (*dispositivos.Consola, bool) {
	switch chi.URLParam(r, "dispositivo") {
	case "teclado":
		return h.Teclado, true
	case "serial":
		return h.Serial, true
	default:
		http.Error(w, "Dispositivo desconocido", http.StatusNotFound)
		return nil, false
	}
}
