package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/sisoputnfrba/tp-trapkernel/io/cmd/api"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

const (
	configFilePath = "./configs/config.json"
)

func main() {
	//para que tome el argumento debe ingresarse asi "go run io.go NOMBRE"
	nombre := "disco"
	if len(os.Args) > 1 {
		nombre = os.Args[1]
	}

	h := api.NewHandler(configFilePath, nombre)

	h.Log.Debug("Inicializando interfaz IO",
		log.StringAttr("nombre", nombre),
	)

	//IO --> Kernel  (le enviará su nombre, ip y puerto)  HANDSHAKE
	if err := h.ConexionInicialKernel(); err != nil {
		panic(err)
	}

	err := http.ListenAndServe(fmt.Sprintf("%s:%d", h.Config.IpIo, h.Config.PortIo), h.Router())
	if err != nil {
		h.Log.Error("Error starting server", log.ErrAttr(err))
		panic(err)
	}
}
