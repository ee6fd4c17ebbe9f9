package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sisoputnfrba/tp-trapkernel/cpu/cmd/api"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

func main() {
	configFile := "./configs/config.json"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	h := api.NewHandler(configFile)

	h.Log.Debug("Inicializando CPU",
		log.IntAttr("numero", h.Config.NumeroCpu),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cpuAddress := fmt.Sprintf("%s:%d", h.Config.IpCpu, h.Config.PortCpu)
	server := &http.Server{Addr: cpuAddress, Handler: h.Router()}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	// El kernel le asigna procesos apenas se conecta, así que el servidor tiene que estar escuchando antes
	go func() {
		if err := h.Iniciar(ctx); err != nil {
			h.Log.Error("No se pudo conectar con el kernel", log.ErrAttr(err))
			stop()
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		h.Log.Error("Error starting server", log.ErrAttr(err))
		panic(err)
	}
}
