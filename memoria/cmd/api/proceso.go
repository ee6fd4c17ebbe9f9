package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// FinalizarProceso libera los marcos del proceso y loguea sus métricas
func (h *Handler) FinalizarProceso(w http.ResponseWriter, r *http.Request) {
	var req PIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Log.Error("PID no proporcionado", log.ErrAttr(err))
		http.Error(w, "PID no proporcionado", http.StatusBadRequest)
		return
	}

	metricas, liberados := h.Memoria.FinalizarProceso(req.PID)

	/* Log obligatorio: Destrucción de Proceso
	“## PID: <PID> - Proceso Destruido - Métricas - Acc.T.Pag: <ATP>; Pag.Inst.: <PI>; Lec.Mem.: <Lec.Mem.>; Esc.Mem.: <Esc.Mem.>”*/
	h.Log.Info(fmt.Sprintf("## PID: %d - Proceso Destruido - Métricas - Acc.T.Pag: %d; "+
		"Pag.Inst.: %d; Lec.Mem.: %d; Esc.Mem.: %d",
		req.PID, metricas.AccesosTablaDePaginas, metricas.PaginasInstaladas,
		metricas.LecturasDeMemoria, metricas.EscriturasDeMemoria))

	h.Log.Debug("Marcos liberados",
		log.IntAttr("pid", req.PID),
		log.IntAttr("marcos", liberados),
		log.IntAttr("libres", h.Memoria.MarcosLibres()),
	)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Proceso finalizado correctamente"))
}

// DumpMemory escribe la tabla de páginas de un proceso en <dump_path>/<pid>-<timestamp>.dmp
func (h *Handler) DumpMemory(w http.ResponseWriter, r *http.Request) {
	var req PIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "PID no proporcionado", http.StatusBadRequest)
		return
	}

	/* Log obligatorio: Memory Dump
	“## PID: <PID> - Memory Dump solicitado”*/
	h.Log.Info(fmt.Sprintf("## PID: %d - Memory Dump solicitado", req.PID))

	nombre := fmt.Sprintf("%d-%s.dmp", req.PID, time.Now().Format("20060102150405"))
	path := filepath.Join(h.Config.DumpPath, nombre)

	contenido, err := json.Marshal(h.Memoria.Tabla(req.PID))
	if err == nil {
		err = os.WriteFile(path, contenido, 0o644)
	}
	if err != nil {
		h.Log.Error("Error al escribir el dump", log.ErrAttr(err), log.StringAttr("path", path))
		http.Error(w, "error al escribir el dump", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(path))
}
