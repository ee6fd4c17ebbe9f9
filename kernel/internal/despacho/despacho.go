package despacho

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/registro"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/ticks"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/trampas"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

// Resultado es cómo termina el manejo de una trampa
type Resultado int

const (
	Reanudar Resultado = iota
	Terminado
	Panico
)

func (r Resultado) String() string {
	switch r {
	case Reanudar:
		return "reanudar"
	case Terminado:
		return "terminado"
	case Panico:
		return "panico"
	default:
		return fmt.Sprintf("resultado(%d)", int(r))
	}
}

var ErrSistemaDetenido = errors.New("el sistema está detenido")

// ErrPanico describe la trampa que detuvo el sistema
type ErrPanico struct {
	Trampa trampas.Trampa
	PID    int
	Motivo string
}

func (e *ErrPanico) Error() string {
	return fmt.Sprintf("panic: %s: trampa %d desde cpu %d ip %#x (dir=%#x)",
		e.Motivo, e.Trampa.Numero, e.Trampa.CPU, e.Trampa.IP, e.Trampa.DireccionFallo)
}

type Fallos interface {
	ManejarFallo(ctx context.Context, p *proc.Proceso, va uint64) error
}

type Syscalls interface {
	Syscall(ctx context.Context, p *proc.Proceso) error
}

type Planificador interface {
	Ceder(ctx context.Context, p *proc.Proceso) error
	Terminar(ctx context.Context, p *proc.Proceso)
}

// Dispositivo atiende la interrupción de fin de operación
type Dispositivo interface {
	Interrupcion(ctx context.Context)
}

// Controlador es el controlador de interrupciones local de cada CPU
type Controlador interface {
	Reconocer(cpu int)
}

type Registrador interface {
	Registrar(ctx context.Context, e registro.Evento) (registro.Evento, error)
}

// Despachador es el punto de entrada de todas las trampas. Lo usan todas las CPUs a la vez;
// el único estado compartido que sincroniza es el contador de ticks.
type Despachador struct {
	Log            *slog.Logger
	Tabla          *trampas.TablaVectores
	Fallos         Fallos
	Syscalls       Syscalls
	Planificador   Planificador
	Ticks          *ticks.Contador
	CPUDuenioTicks int
	Disco          Dispositivo
	Teclado        Dispositivo
	Serial         Dispositivo
	LAPIC          Controlador
	Registro       Registrador // opcional

	detenido atomic.Bool
}

// Detenido indica si alguna trampa produjo un panic. Una vez detenido no se atienden más trampas.
func (d *Despachador) Detenido() bool {
	return d.detenido.Load()
}

// Despachar maneja la trampa tf ocurrida mientras ejecutaba p (nil si la CPU estaba ociosa).
func (d *Despachador) Despachar(ctx context.Context, tf trampas.Trampa, p *proc.Proceso) (Resultado, error) {
	if d.Detenido() {
		return Panico, ErrSistemaDetenido
	}
	if p != nil && p.Estado() == proc.EstadoExit {
		return d.DespacharFinalizado(ctx, tf)
	}

	tf = d.Tabla.Normalizar(tf)

	if tf.Numero == trampas.TrampaSyscall {
		return d.syscall(ctx, tf, p)
	}

	if tf.Numero == trampas.TrampaPageFault {
		if p == nil {
			return d.panico(ctx, tf, p, "page fault sin proceso")
		}
		if err := d.Fallos.ManejarFallo(ctx, p, tf.DireccionFallo); err != nil {
			d.registrar(ctx, registro.NuevoEvento(registro.TipoFalloPagina, p.PID, tf, err.Error()))
		}
	} else if !d.interrupcion(ctx, tf, p) {
		if p == nil || !tf.DesdeUsuario() {
			return d.panico(ctx, tf, p, "trampa inesperada")
		}
		// En modo usuario se asume que el proceso se portó mal
		d.Log.Info(fmt.Sprintf("## (%d) %s: trampa %d err %d en cpu %d ip %#x dir %#x - Se mata el proceso",
			p.PID, p.Nombre, tf.Numero, tf.CodigoError, tf.CPU, tf.IP, tf.DireccionFallo))
		d.registrar(ctx, registro.NuevoEvento(registro.TipoTrampaUsuario, p.PID, tf, tf.Nombre()))
		p.Kill()
	}

	return d.postTrampa(ctx, tf, p)
}

// DespacharFinalizado atiende una trampa que llega a nombre de un proceso que ya terminó o que ya no existe.
// Las interrupciones de dispositivo se atienden como con la CPU ociosa y todo lo demás se descarta.
func (d *Despachador) DespacharFinalizado(ctx context.Context, tf trampas.Trampa) (Resultado, error) {
	if d.Detenido() {
		return Panico, ErrSistemaDetenido
	}
	d.interrupcion(ctx, d.Tabla.Normalizar(tf), nil)
	return Terminado, nil
}

// interrupcion atiende los vectores de dispositivo y reconoce el LAPIC. Devuelve false si tf no es uno de ellos.
func (d *Despachador) interrupcion(ctx context.Context, tf trampas.Trampa, p *proc.Proceso) bool {
	switch tf.Numero {
	case trampas.VectorTimer:
		if tf.CPU == d.CPUDuenioTicks {
			valor := d.Ticks.Incrementar()
			d.Log.Debug("Tick", log.AnyAttr("ticks", valor))
		}

	case trampas.VectorDisco:
		d.Disco.Interrupcion(ctx)

	case trampas.VectorDisco2:
		// El canal secundario genera interrupciones espurias: sólo se reconocen

	case trampas.VectorTeclado:
		d.Teclado.Interrupcion(ctx)

	case trampas.VectorSerial:
		d.Serial.Interrupcion(ctx)

	case trampas.VectorIRQ7, trampas.VectorEspurio:
		d.Log.Warn(fmt.Sprintf("cpu%d: interrupción espuria en %#x", tf.CPU, tf.IP))
		d.registrar(ctx, registro.NuevoEvento(registro.TipoEspuria, pid(p), tf, ""))

	default:
		return false
	}

	d.LAPIC.Reconocer(tf.CPU)
	return true
}

func (d *Despachador) syscall(ctx context.Context, tf trampas.Trampa, p *proc.Proceso) (Resultado, error) {
	if p == nil {
		return d.panico(ctx, tf, p, "syscall sin proceso")
	}
	if p.Killed() {
		d.terminar(ctx, p)
		return Terminado, nil
	}

	p.AsociarTrampa(tf)
	if err := d.Syscalls.Syscall(ctx, p); err != nil {
		d.Log.Debug("La syscall devolvió error",
			log.ErrAttr(err),
			log.IntAttr("pid", p.PID),
		)
	}

	if p.Killed() {
		d.terminar(ctx, p)
		return Terminado, nil
	}
	return Reanudar, nil
}

// postTrampa corre después de toda trampa que no sea syscall
func (d *Despachador) postTrampa(ctx context.Context, tf trampas.Trampa, p *proc.Proceso) (Resultado, error) {
	if p == nil {
		return Reanudar, nil
	}

	// Si sigue en el kernel se lo deja correr hasta el retorno normal de la llamada
	if p.Killed() {
		if tf.DesdeUsuario() {
			d.terminar(ctx, p)
			return Terminado, nil
		}
		d.Log.Debug("Finalización diferida hasta el retorno al usuario", log.IntAttr("pid", p.PID))
		return Reanudar, nil
	}

	if p.Estado() == proc.EstadoExec && tf.EsTimer() {
		if err := d.Planificador.Ceder(ctx, p); err != nil {
			d.Log.Warn("No se pudo ceder la CPU",
				log.ErrAttr(err),
				log.IntAttr("pid", p.PID),
			)
		}
		// Lo pudieron matar mientras esperaba la CPU
		if p.Killed() && tf.DesdeUsuario() {
			d.terminar(ctx, p)
			return Terminado, nil
		}
	}

	return Reanudar, nil
}

// RetornoLlamada es el camino de vuelta de una operación de kernel: completa la finalización diferida
func (d *Despachador) RetornoLlamada(ctx context.Context, p *proc.Proceso) Resultado {
	if p == nil {
		return Reanudar
	}
	if p.Estado() == proc.EstadoExit {
		return Terminado
	}
	if p.Killed() {
		d.terminar(ctx, p)
		return Terminado
	}
	return Reanudar
}

func (d *Despachador) terminar(ctx context.Context, p *proc.Proceso) {
	d.Planificador.Terminar(ctx, p)
}

func (d *Despachador) panico(ctx context.Context, tf trampas.Trampa, p *proc.Proceso, motivo string) (Resultado, error) {
	d.detenido.Store(true)

	err := &ErrPanico{Trampa: tf, PID: pid(p), Motivo: motivo}
	d.Log.Error(fmt.Sprintf("trampa inesperada %d desde cpu %d ip %#x (cr2=%#x)", tf.Numero, tf.CPU, tf.IP, tf.DireccionFallo),
		log.StringAttr("motivo", motivo),
		log.StringAttr("privilegio", tf.Privilegio.String()),
		log.IntAttr("pid", pid(p)),
	)
	d.registrar(ctx, registro.NuevoEvento(registro.TipoPanico, pid(p), tf, motivo))
	return Panico, err
}

func (d *Despachador) registrar(ctx context.Context, e registro.Evento) {
	if d.Registro == nil {
		return
	}
	if _, err := d.Registro.Registrar(ctx, e); err != nil {
		d.Log.Error("No se pudo registrar el evento de diagnóstico", log.ErrAttr(err))
	}
}

func pid(p *proc.Proceso) int {
	if p == nil {
		return 0
	}
	return p.PID
}
