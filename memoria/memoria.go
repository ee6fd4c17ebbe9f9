package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/sisoputnfrba/tp-trapkernel/memoria/cmd/api"
)

func main() {
	configFile := "configs/config.json"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	h := api.NewHandler(configFile)

	memoriaAddress := fmt.Sprintf("%s:%d", h.Config.IpMemory, h.Config.PortMemory)
	h.Log.Info("Memoria escuchando", "address", memoriaAddress)
	if err := http.ListenAndServe(memoriaAddress, h.Router()); err != nil {
		h.Log.Error("Error starting server", "err", err)
		panic(err)
	}
}
