package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/cmd/api"
)

func main() {
	configFile := "configs/config.json"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	h := api.NewHandler(configFile)
	defer func() {
		_ = h.Registro.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h.Iniciar(ctx, configFile)

	kernelAddress := fmt.Sprintf("%s:%d", h.Config.IpKernel, h.Config.PortKernel)
	server := &http.Server{Addr: kernelAddress, Handler: h.Router()}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	h.Log.Info("Kernel escuchando", "address", kernelAddress)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		h.Log.Error("Error starting server", "err", err)
		panic(err)
	}
}
