package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sisoputnfrba/tp-trapkernel/cpu/internal"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// RecibirProceso maneja la asignación de un proceso por parte del planificador del kernel
func (h *Handler) RecibirProceso(w http.ResponseWriter, r *http.Request) {
	var proceso Proceso
	if err := json.NewDecoder(r.Body).Decode(&proceso); err != nil {
		h.Log.Error("Error decodificando proceso",
			log.ErrAttr(err))
		http.Error(w, "Error decodificando proceso", http.StatusBadRequest)
		return
	}

	h.Log.Debug("Proceso recibido del kernel",
		log.IntAttr("pid", proceso.PID))

	h.Service.AsignarProceso(proceso.PID)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Acceder ejecuta un acceso a memoria del proceso, con page fault incluido si la página no está
func (h *Handler) Acceder(w http.ResponseWriter, r *http.Request) {
	var req AccesoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error decodificando acceso", http.StatusBadRequest)
		return
	}

	datos, err := h.Service.Acceder(r.Context(), internal.Acceso{
		PID:       req.PID,
		Direccion: req.Direccion,
		Escritura: req.Escritura,
		Datos:     req.Datos,
		Tamanio:   req.Tamanio,
		Kernel:    req.Kernel,
	})
	if err != nil {
		h.responderError(w, r, err)
		return
	}
	h.responderJSON(w, r, AccesoResponse{Datos: datos})
}

func (h *Handler) Syscall(w http.ResponseWriter, r *http.Request) {
	var req SyscallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error decodificando syscall", http.StatusBadRequest)
		return
	}

	/* Log obligatorio: Syscall
	“## PID: <PID> - Syscall: <NUMERO>”*/
	h.Log.Info(fmt.Sprintf("## PID: %d - Syscall: %d", req.PID, req.Llamada))

	ret, err := h.Service.Syscall(r.Context(), req.PID, req.Llamada, req.Args)
	if err != nil {
		h.responderError(w, r, err)
		return
	}
	h.responderJSON(w, r, SyscallResponse{Retorno: ret})
}
