package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sisoputnfrba/tp-trapkernel/memoria/internal/marcos"
	"github.com/sisoputnfrba/tp-trapkernel/utils/config"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

type Handler struct {
	Log     *slog.Logger
	Config  *Config
	Memoria *marcos.Memoria
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

	memoria, err := marcos.Nueva(configStruct.MemorySize, configStruct.PageSize)
	if err != nil {
		panic(err)
	}

	return &Handler{
		Config:  configStruct,
		Log:     log.BuildLogger(configStruct.LogLevel),
		Memoria: memoria,
	}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	// Kernel --> Memoria
	r.Post("/kernel/marcos", h.AsignarMarco)
	r.Delete("/kernel/marcos/{marco}", h.LiberarMarco)
	r.Post("/kernel/paginas", h.InstalarPagina)
	r.Delete("/kernel/paginas", h.LiberarPaginas)
	r.Post("/kernel/fin-proceso", h.FinalizarProceso)
	r.Post("/kernel/dump-memory", h.DumpMemory)

	// CPU --> Memoria
	r.Get("/cpu/traduccion", h.Traducir)
	r.Post("/cpu/acceso", h.RecibirPeticionAcceso)

	return r
}

func (h *Handler) retardo() {
	if h.Config.MemoryDelay > 0 {
		time.Sleep(time.Duration(h.Config.MemoryDelay) * time.Millisecond)
	}
}

func (h *Handler) responderJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.ErrorContext(r.Context(), "Error al codificar la respuesta", log.ErrAttr(err))
		http.Error(w, "Error al codificar la respuesta", http.StatusInternalServerError)
	}
}
