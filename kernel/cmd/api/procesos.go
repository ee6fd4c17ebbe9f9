package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/archivos"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// CrearProceso da de alta un proceso y lo admite en READY
func (h *Handler) CrearProceso(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CrearProcesoRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Log.ErrorContext(ctx, "Error al decodificar el proceso", log.ErrAttr(err))
		http.Error(w, "Error al decodificar el proceso", http.StatusBadRequest)
		return
	}

	p := h.Procesos.Crear(req.Nombre)
	if err := h.Planificador.Admitir(p); err != nil {
		h.Procesos.Eliminar(p.PID)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	h.responderJSON(w, r, http.StatusCreated, PIDRequest{PID: p.PID})
}

func (h *Handler) ListarProcesos(w http.ResponseWriter, r *http.Request) {
	lista := h.Procesos.Listar()
	resp := make([]ProcesoResponse, 0, len(lista))
	for _, p := range lista {
		resp = append(resp, procesoResponse(p))
	}
	h.responderJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) ObtenerProceso(w http.ResponseWriter, r *http.Request) {
	p, ok := h.procesoDeURL(w, r)
	if !ok {
		return
	}
	h.responderJSON(w, r, http.StatusOK, procesoResponse(p))
}

// MatarProceso sólo marca al proceso; termina la próxima vez que pase por el kernel
func (h *Handler) MatarProceso(w http.ResponseWriter, r *http.Request) {
	p, ok := h.procesoDeURL(w, r)
	if !ok {
		return
	}

	if p.Kill() {
		h.Log.InfoContext(r.Context(), fmt.Sprintf("## (%d) Proceso marcado para finalizar - Pedido externo", p.PID))
	}
	h.responderJSON(w, r, http.StatusOK, procesoResponse(p))
}

// TrampasDeProceso devuelve las trampas registradas para el proceso, aunque ya haya finalizado
func (h *Handler) TrampasDeProceso(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(chi.URLParam(r, "pid"))
	if err != nil {
		http.Error(w, "pid inválido", http.StatusBadRequest)
		return
	}

	eventos, err := h.Registro.PorProceso(r.Context(), pid)
	if err != nil {
		h.Log.ErrorContext(r.Context(), "Error consultando el registro", log.ErrAttr(err), log.IntAttr("pid", pid))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.responderJSON(w, r, http.StatusOK, eventos)
}

func (h *Handler) AbrirArchivo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.procesoDeURL(w, r)
	if !ok {
		return
	}

	var req AbrirArchivoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error al decodificar el archivo", http.StatusBadRequest)
		return
	}

	inodo := archivos.NuevoInodo(req.Contenido)
	if req.Path != "" {
		var err error
		inodo, err = archivos.DesdeArchivo(req.Path)
		if err != nil {
			h.Log.WarnContext(ctx, "No se pudo abrir el archivo", log.ErrAttr(err), log.StringAttr("path", req.Path))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	fd := p.AbrirArchivo(&proc.Archivo{
		Legible:    req.Legible,
		Escribible: req.Escribible,
		Inodo:      inodo,
	})
	if fd < 0 {
		http.Error(w, "No hay descriptores libres", http.StatusConflict)
		return
	}

	h.Log.DebugContext(ctx, "Archivo abierto", log.IntAttr("pid", p.PID), log.IntAttr("fd", fd))
	h.responderJSON(w, r, http.StatusCreated, FDResponse{FD: fd})
}

func (h *Handler) CerrarArchivo(w http.ResponseWriter, r *http.Request) {
	p, ok := h.procesoDeURL(w, r)
	if !ok {
		return
	}

	fd, err := strconv.Atoi(chi.URLParam(r, "fd"))
	if err != nil {
		http.Error(w, "fd inválido", http.StatusBadRequest)
		return
	}
	if !p.CerrarArchivo(fd) {
		http.Error(w, "El descriptor no está abierto", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AgregarMapeo registra el mapeo sin reservar memoria; las páginas se cargan al primer fallo
func (h *Handler) AgregarMapeo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.procesoDeURL(w, r)
	if !ok {
		return
	}

	var m proc.Mapeo
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, "Error al decodificar el mapeo", http.StatusBadRequest)
		return
	}

	slot, err := p.Mapeos.Agregar(m)
	switch {
	case errors.Is(err, proc.ErrSolapamiento), errors.Is(err, proc.ErrTablaLlena):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.Log.InfoContext(ctx, fmt.Sprintf("## (%d) Mapeo agregado - Slot: %d - Base: %#x - Longitud: %#x", p.PID, slot, m.Base, m.Longitud))
	h.responderJSON(w, r, http.StatusCreated, SlotResponse{Slot: slot})
}

func (h *Handler) QuitarMapeo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.procesoDeURL(w, r)
	if !ok {
		return
	}

	base, err := strconv.ParseUint(chi.URLParam(r, "base"), 0, 64)
	if err != nil {
		http.Error(w, "base inválida", http.StatusBadRequest)
		return
	}

	m, _, encontrado := p.Mapeos.Buscar(base)
	if !encontrado || m.Base != base {
		http.Error(w, proc.ErrMapeoInexistente.Error(), http.StatusNotFound)
		return
	}
	if err := p.Mapeos.Quitar(base); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if err := h.Memoria.LiberarRango(ctx, p.Espacio, m.Base, m.Longitud); err != nil {
		h.Log.ErrorContext(ctx, "Error liberando las páginas del mapeo",
			log.ErrAttr(err),
			log.IntAttr("pid", p.PID),
			log.HexAttr("base", m.Base),
		)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if err := h.Planificador.InvalidarTLB(ctx, p.Espacio, m.Base, m.Longitud); err != nil {
		h.Log.ErrorContext(ctx, "Error invalidando las TLBs del mapeo",
			log.ErrAttr(err),
			log.IntAttr("pid", p.PID),
			log.HexAttr("base", m.Base),
		)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.Log.InfoContext(ctx, fmt.Sprintf("## (%d) Mapeo quitado - Base: %#x", p.PID, base))
	w.WriteHeader(http.StatusNoContent)
}

// SolicitarDisco encola la lectura de un bloque y espera a que llegue la interrupción del disco
func (h *Handler) SolicitarDisco(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.procesoDeURL(w, r)
	if !ok {
		return
	}

	var req PeticionDisco
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error al decodificar la petición", http.StatusBadRequest)
		return
	}

	io, hayIO := h.primeraIO()
	if !hayIO {
		http.Error(w, "No hay dispositivos IO conectados", http.StatusServiceUnavailable)
		return
	}

	peticion := h.Disco.Encolar(p.PID, req.Bloque)
	h.Log.InfoContext(ctx, fmt.Sprintf("## (%d) - Solicitó IO - Bloque: %d", p.PID, req.Bloque))

	// La interrupción del disco se enruta a la última CPU
	err := h.EnviarPeticionAIO(io, PeticionDisco{
		PID:    p.PID,
		Bloque: req.Bloque,
		CPU:    h.Config.CantidadCPUs - 1,
	})
	if err != nil {
		h.Disco.Cancelar(peticion)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	select {
	case <-peticion.Hecha():
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	case <-ctx.Done():
		h.Disco.Cancelar(peticion)
	}
}

func procesoResponse(p *proc.Proceso) ProcesoResponse {
	return ProcesoResponse{
		PID:    p.PID,
		Nombre: p.Nombre,
		Estado: p.Estado().String(),
		Killed: p.Killed(),
		Mapeos: p.Mapeos.Ocupados(),
	}
}
