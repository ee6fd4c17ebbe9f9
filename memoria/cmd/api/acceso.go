package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// Traducir le devuelve a la MMU de la CPU la entrada de la tabla de páginas. Una página ausente no es un error.
func (h *Handler) Traducir(w http.ResponseWriter, r *http.Request) {
	var (
		query          = r.URL.Query()
		pid, errPID    = strconv.Atoi(query.Get("pid"))
		direccion, err = strconv.ParseUint(query.Get("direccion"), 0, 64)
	)
	if errPID != nil || err != nil {
		http.Error(w, "pid o dirección inválidos", http.StatusBadRequest)
		return
	}

	h.retardo()
	entrada, presente := h.Memoria.Traducir(pid, direccion)

	h.Log.DebugContext(r.Context(), "Traducción",
		log.IntAttr("pid", pid),
		log.HexAttr("direccion", direccion),
		log.BoolAttr("presente", presente),
	)
	h.responderJSON(w, r, TraduccionResponse{Presente: presente, Entrada: entrada})
}

func (h *Handler) RecibirPeticionAcceso(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var peticion PeticionAcceso
	err := json.NewDecoder(r.Body).Decode(&peticion)
	if err != nil {
		h.Log.ErrorContext(ctx, "Error al decodificar petición de acceso", log.ErrAttr(err))
		http.Error(w, "Petición inválida", http.StatusBadRequest)
		return
	}

	h.retardo()

	var respuesta RespuestaAcceso
	switch peticion.Operacion {
	case "READ":
		datos, err := h.Memoria.Leer(peticion.PID, peticion.Direccion, peticion.Tamanio)
		if err != nil {
			respuesta = RespuestaAcceso{Mensaje: err.Error()}
			break
		}
		respuesta = RespuestaAcceso{Datos: datos, Exito: true}

		/* Log obligatorio: Lectura
		“## PID: <PID> - Lectura - Dir. Física: <DIRECCIÓN_FÍSICA> - Tamaño: <TAMAÑO>”*/
		h.Log.Info(fmt.Sprintf("## PID: %d - Lectura - Dir. Física: %#x - Tamaño: %d",
			peticion.PID, peticion.Direccion, peticion.Tamanio))

	case "WRITE":
		if err := h.Memoria.Escribir(peticion.PID, peticion.Direccion, peticion.Datos); err != nil {
			respuesta = RespuestaAcceso{Mensaje: err.Error()}
			break
		}
		respuesta = RespuestaAcceso{Exito: true}

		h.Log.Info(fmt.Sprintf("## PID: %d - Escritura - Dir. Física: %#x - Tamaño: %d",
			peticion.PID, peticion.Direccion, len(peticion.Datos)))

	default:
		respuesta = RespuestaAcceso{
			Exito:   false,
			Mensaje: fmt.Sprintf("Operación no soportada: %s", peticion.Operacion),
		}

		h.Log.WarnContext(ctx, "Operación no soportada",
			log.StringAttr("operacion", peticion.Operacion),
		)
	}

	h.responderJSON(w, r, respuesta)
}
