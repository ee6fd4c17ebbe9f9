package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sisoputnfrba/tp-trapkernel/cpu/internal"
	"github.com/sisoputnfrba/tp-trapkernel/cpu/internal/mmu"
	"github.com/sisoputnfrba/tp-trapkernel/cpu/pkg/kernel"
	"github.com/sisoputnfrba/tp-trapkernel/cpu/pkg/memoria"
	"github.com/sisoputnfrba/tp-trapkernel/utils/config"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

type Handler struct {
	Log     *slog.Logger
	Config  *Config
	Service *internal.Service
	Kernel  *kernel.Kernel
	Memoria *memoria.Memoria
}

func NewHandler(configFile string) *Handler {
	c := config.IniciarConfiguracion(configFile, &Config{})
	if c == nil {
		panic("Error loading configuration")
	}

	// Cast the configuration to the specific type
	configStruct, ok := c.(*Config)
	if !ok {
		panic("Error casting configuration")
	}

	logger := log.BuildLogger(configStruct.LogLevel)

	mem := memoria.NewMemoria(configStruct.IpMemory, configStruct.PortMemory, logger)
	k := kernel.NewKernel(configStruct.IpKernel, configStruct.PortKernel, logger)

	m, err := mmu.NewMMU(configStruct.TlbEntries, configStruct.PageSize, mem, logger)
	if err != nil {
		panic(err)
	}

	return &Handler{
		Config:  configStruct,
		Log:     logger,
		Service: internal.NewService(logger, configStruct.NumeroCpu, k, mem, m),
		Kernel:  k,
		Memoria: mem,
	}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	// Kernel --> CPU
	r.Post("/cpu/proceso", h.RecibirProceso)
	r.Post("/cpu/tlb/invalidar", h.InvalidarTLB)

	// Carga de trabajo y dispositivos --> CPU
	r.Post("/cpu/acceso", h.Acceder)
	r.Post("/cpu/syscall", h.Syscall)
	r.Post("/cpu/interrupcion", h.RecibirInterrupcion)

	return r
}

// Iniciar registra la CPU en el kernel y arranca el timer
func (h *Handler) Iniciar(ctx context.Context) error {
	id := fmt.Sprintf("cpu-%d", h.Config.NumeroCpu)
	if err := h.Kernel.ConexionInicial(ctx, h.Config.IpCpu, h.Config.PortCpu, id); err != nil {
		return err
	}

	if h.Config.TimerMs > 0 {
		go h.Service.IniciarTimer(ctx, time.Duration(h.Config.TimerMs)*time.Millisecond)
	}
	return nil
}

// responderError traduce los errores de la CPU a status HTTP
func (h *Handler) responderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, internal.ErrProcesoTerminado):
		status = http.StatusGone
	case errors.Is(err, kernel.ErrSistemaDetenido):
		status = http.StatusServiceUnavailable
	case errors.Is(err, internal.ErrFalloNoResuelto), errors.Is(err, memoria.ErrAccesoRechazado):
		status = http.StatusUnprocessableEntity
	}

	h.Log.WarnContext(r.Context(), "Error ejecutando el pedido", log.ErrAttr(err), log.IntAttr("status", status))
	http.Error(w, err.Error(), status)
}

func (h *Handler) responderJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.ErrorContext(r.Context(), "Error codificando respuesta", log.ErrAttr(err))
		http.Error(w, "Error interno del servidor", http.StatusInternalServerError)
	}
}
