package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/planificadores"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// ConexionInicialIO Recibe la lista de IOs
func (h *Handler) ConexionInicialIO(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var ioInfo IOIdentificacion

	// Leer el cuerpo de la solicitud
	decoder := json.NewDecoder(r.Body)
	err := decoder.Decode(&ioInfo)
	if err != nil {
		h.Log.ErrorContext(ctx, "Error al decodificar ioIdentificacion",
			log.ErrAttr(err),
		)

		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Error al decodificar ioIdentificacion"))
		return
	}

	h.mutexIOs.Lock()
	h.IOsConectadas = append(h.IOsConectadas, ioInfo)
	h.mutexIOs.Unlock()

	h.Log.DebugContext(ctx, "IO conectada",
		log.StringAttr("nombre", ioInfo.Nombre),
		log.StringAttr("ip", ioInfo.IP),
		log.IntAttr("puerto", ioInfo.Puerto),
	)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ConexionInicialCPU agrega la CPU al pool del planificador
func (h *Handler) ConexionInicialCPU(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var cpuInfo CPUIdentificacion

	decoder := json.NewDecoder(r.Body)
	err := decoder.Decode(&cpuInfo)
	if err != nil {
		h.Log.ErrorContext(ctx, "Error al decodificar cpuIdentificacion",
			log.ErrAttr(err),
		)

		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Error al decodificar cpuIdentificacion"))
		return
	}

	_, err = h.Planificador.AddCpuConectada(&planificadores.CpuIdentificacion{
		IP:     cpuInfo.IP,
		Puerto: cpuInfo.Puerto,
		ID:     cpuInfo.ID,
	})
	if errors.Is(err, planificadores.ErrDemasiadasCPUs) {
		h.Log.WarnContext(ctx, "CPU rechazada", log.StringAttr("cpu_id", cpuInfo.ID), log.ErrAttr(err))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.Log.ErrorContext(ctx, "Error al conectar la CPU", log.StringAttr("cpu_id", cpuInfo.ID), log.ErrAttr(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) primeraIO() (IOIdentificacion, bool) {
	h.mutexIOs.Lock()
	defer h.mutexIOs.Unlock()

	if len(h.IOsConectadas) == 0 {
		return IOIdentificacion{}, false
	}
	return h.IOsConectadas[0], true
}
