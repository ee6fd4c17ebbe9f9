package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sisoputnfrba/tp-trapkernel/utils/config"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

type Handler struct {
	Nombre     string
	Log        *slog.Logger
	Config     *Config
	HttpClient *http.Client

	// El disco atiende una petición a la vez
	mutexDisco sync.Mutex
}

func NewHandler(configFile, nombre string) *Handler {
	c := config.IniciarConfiguracion(configFile, &Config{})
	if c == nil {
		panic("Error loading configuration")
	}

	// Cast the configuration to the specific type
	configStruct, ok := c.(*Config)
	if !ok {
		panic("Error casting configuration")
	}

	// Initialize the logger with the log level from the configuration
	logLevel := configStruct.LogLevel

	httpClient := &http.Client{
		Timeout: 2 * time.Minute,
	}

	return &Handler{
		Nombre:     nombre,
		Config:     configStruct,
		Log:        log.BuildLogger(logLevel),
		HttpClient: httpClient,
	}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	// Kernel --> IO
	r.Post("/kernel/disco", h.EjecutarPeticion)

	return r
}
