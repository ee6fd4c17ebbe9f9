package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// IniciarConfiguracion decodifica el archivo JSON en config. Sin configuración el módulo no puede levantar,
// por eso ante cualquier error se loguea y se hace panic.
func IniciarConfiguracion(filePath string, config interface{}) interface{} {
	if err := CargarConfiguracion(filePath, config); err != nil {
		slog.Error("Error al cargar el archivo de configuración",
			slog.Attr{Key: "filePath", Value: slog.StringValue(filePath)},
			slog.Attr{Key: "error", Value: slog.StringValue(err.Error())},
		)
		panic(err)
	}

	return config
}

// CargarConfiguracion es la variante que devuelve el error en lugar de hacer panic. Se usa al recargar.
func CargarConfiguracion(filePath string, config interface{}) error {
	configFile, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("abriendo %s: %w", filePath, err)
	}
	defer func() {
		_ = configFile.Close()
	}()

	if err = json.NewDecoder(configFile).Decode(config); err != nil {
		return fmt.Errorf("decodificando %s: %w", filePath, err)
	}

	return nil
}

// ObservarConfiguracion llama a alCambiar cada vez que el archivo se escribe o se vuelve a crear.
// Se observa el directorio porque los editores suelen reemplazar el archivo en vez de escribirlo.
// Bloquea hasta que se cancele ctx.
func ObservarConfiguracion(ctx context.Context, filePath string, logger *slog.Logger, alCambiar func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creando watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	objetivo := filepath.Clean(filePath)
	if err = watcher.Add(filepath.Dir(objetivo)); err != nil {
		return fmt.Errorf("observando %s: %w", filePath, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != objetivo {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.Debug("Cambio en archivo de configuración",
					slog.String("archivo", event.Name),
					slog.String("op", event.Op.String()),
				)
				alCambiar()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Error del watcher de configuración", slog.Any("error", err))
		}
	}
}
