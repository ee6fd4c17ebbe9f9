package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/despacho"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/dispositivos"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/llamadas"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/planificadores"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/registro"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/ticks"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/trampas"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/vm"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/pkg/memoria"
	"github.com/sisoputnfrba/tp-trapkernel/utils/config"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

type Handler struct {
	Log          *slog.Logger
	Nivel        *slog.LevelVar
	Config       *Config
	Procesos     *proc.Tabla
	Planificador *planificadores.Service
	Despachador  *despacho.Despachador
	Memoria      *memoria.Memoria
	Ticks        *ticks.Contador
	Disco        *dispositivos.Disco
	Teclado      *dispositivos.Consola
	Serial       *dispositivos.Consola
	LAPIC        *dispositivos.LAPIC
	Registro     *registro.Registro

	mutexIOs      sync.Mutex
	IOsConectadas []IOIdentificacion
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

	// El nivel queda en un LevelVar para poder cambiarlo al recargar la configuración
	nivel := &slog.LevelVar{}
	nivel.Set(log.ParseLevel(configStruct.LogLevel))
	logger := log.BuildLoggerWithLevel(nivel)

	reg, err := registro.Abrir(configStruct.RegistroPath, configStruct.RegistroRecientes, logger)
	if err != nil {
		panic(fmt.Sprintf("Error abriendo el registro de trampas: %v", err))
	}

	h := &Handler{
		Log:           logger,
		Nivel:         nivel,
		Config:        configStruct,
		Procesos:      proc.NuevaTabla(),
		Planificador:  planificadores.NewPlanificador(logger, configStruct.CantidadCPUs),
		Memoria:       memoria.NewMemoria(configStruct.IpMemory, configStruct.PortMemory, logger),
		Ticks:         ticks.NuevoContador(),
		Disco:         dispositivos.NewDisco(logger),
		Teclado:       dispositivos.NewConsola("teclado", logger),
		Serial:        dispositivos.NewConsola("serial", logger),
		LAPIC:         dispositivos.NewLAPIC(),
		Registro:      reg,
		IOsConectadas: make([]IOIdentificacion, 0),
	}
	h.Planificador.AlFinalizar = h.liberarProceso

	h.Despachador = &despacho.Despachador{
		Log:            logger,
		Tabla:          trampas.Tabla(),
		Fallos:         vm.NewManejadorFallos(logger, h.Memoria, h.Memoria),
		Syscalls:       llamadas.NewManejador(logger, h.Ticks, h.Procesos, h.Memoria, h.Planificador),
		Planificador:   h.Planificador,
		Ticks:          h.Ticks,
		CPUDuenioTicks: configStruct.CPUDuenioTicks,
		Disco:          h.Disco,
		Teclado:        h.Teclado,
		Serial:         h.Serial,
		LAPIC:          h.LAPIC,
		Registro:       reg,
	}

	return h
}

// Router arma las rutas del kernel
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	// CPU --> Kernel
	r.Post("/cpu/conexion-inicial", h.ConexionInicialCPU)
	r.Post("/cpu/trampa", h.RecibirTrampa)
	r.Post("/cpu/retorno-llamada", h.RetornoLlamada)

	// IO --> Kernel
	r.Post("/io/conexion-inicial", h.ConexionInicialIO)
	r.Post("/io/fin-peticion", h.FinPeticionIO)

	r.Route("/kernel/procesos", func(r chi.Router) {
		r.Post("/", h.CrearProceso)
		r.Get("/", h.ListarProcesos)
		r.Get("/{pid}", h.ObtenerProceso)
		r.Post("/{pid}/kill", h.MatarProceso)
		r.Post("/{pid}/archivos", h.AbrirArchivo)
		r.Delete("/{pid}/archivos/{fd}", h.CerrarArchivo)
		r.Post("/{pid}/mapeos", h.AgregarMapeo)
		r.Delete("/{pid}/mapeos/{base}", h.QuitarMapeo)
		r.Post("/{pid}/disco", h.SolicitarDisco)
		r.Get("/{pid}/trampas", h.TrampasDeProceso)
	})

	r.Get("/kernel/ticks", h.ObtenerTicks)
	r.Get("/kernel/ticks/esperar", h.EsperarTicks)
	r.Get("/kernel/trampas/recientes", h.TrampasRecientes)
	r.Get("/kernel/trampas/resumen", h.ResumenTrampas)
	r.Post("/kernel/consola/{dispositivo}", h.IngresarConsola)
	r.Get("/kernel/consola/{dispositivo}", h.LeerConsola)

	return r
}

// Iniciar arranca el planificador de corto plazo y la recarga del log_level. Corre hasta que se cancele ctx.
func (h *Handler) Iniciar(ctx context.Context, configFile string) {
	go h.Planificador.PlanificadorCortoPlazoFIFO(ctx)

	go func() {
		err := config.ObservarConfiguracion(ctx, configFile, h.Log, h.recargarNivel(configFile))
		if err != nil {
			h.Log.Warn("No se pudo observar la configuración", log.ErrAttr(err))
		}
	}()
}

func (h *Handler) recargarNivel(configFile string) func() {
	return func() {
		nueva := &Config{}
		if err := config.CargarConfiguracion(configFile, nueva); err != nil {
			h.Log.Warn("Configuración inválida, se mantiene la anterior", log.ErrAttr(err))
			return
		}
		h.Nivel.Set(log.ParseLevel(nueva.LogLevel))
		h.Log.Info("Nivel de log actualizado", log.StringAttr("log_level", nueva.LogLevel))
	}
}

// liberarProceso se llama cuando el planificador pasa un proceso a EXIT
func (h *Handler) liberarProceso(ctx context.Context, p *proc.Proceso) {
	status, err := h.Memoria.FinalizarProceso(ctx, p.PID)
	if err != nil || status != http.StatusOK {
		h.Log.Error("Error al finalizar el proceso en memoria",
			log.ErrAttr(err),
			log.IntAttr("pid", p.PID),
			log.IntAttr("status_code", status),
		)
	}
	h.Procesos.Eliminar(p.PID)
}

func (h *Handler) procesoDeURL(w http.ResponseWriter, r *http.Request) (*proc.Proceso, bool) {
	pid, err := strconv.Atoi(chi.URLParam(r, "pid"))
	if err != nil {
		http.Error(w, "pid inválido", http.StatusBadRequest)
		return nil, false
	}
	p := h.Procesos.Buscar(pid)
	if p == nil {
		http.Error(w, "Proceso no encontrado", http.StatusNotFound)
		return nil, false
	}
	return p, true
}

func (h *Handler) responderJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.ErrorContext(r.Context(), "Error al codificar la respuesta", log.ErrAttr(err))
	}
}
