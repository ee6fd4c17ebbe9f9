package despacho

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/dispositivos"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/registro"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/ticks"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/trampas"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/vm"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

type planificadorFalso struct {
	mu         sync.Mutex
	cedidos    []int
	terminados []int
	alCeder    func(p *proc.Proceso)
}

func (f *planificadorFalso) Ceder(_ context.Context, p *proc.Proceso) error {
	f.mu.Lock()
	f.cedidos = append(f.cedidos, p.PID)
	f.mu.Unlock()
	if f.alCeder != nil {
		f.alCeder(p)
	}
	return nil
}

func (f *planificadorFalso) Terminar(_ context.Context, p *proc.Proceso) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.terminados = append(f.terminados, p.PID)
	p.SetEstado(proc.EstadoExit)
}

type syscallsFalsas struct {
	llamadas int
	matar    bool
}

func (s *syscallsFalsas) Syscall(_ context.Context, p *proc.Proceso) error {
	s.llamadas++
	if _, ok := p.Trampa(); !ok {
		return errors.New("sin trampa")
	}
	if s.matar {
		p.Kill()
	}
	return nil
}

type marcosFalsos struct {
	libres    int
	siguiente int
}

func (m *marcosFalsos) Asignar(_ context.Context) (*vm.Pagina, error) {
	if m.libres == 0 {
		return nil, errors.New("sin marcos")
	}
	m.libres--
	m.siguiente++
	return &vm.Pagina{Marco: m.siguiente, Datos: make([]byte, vm.TamanioPagina)}, nil
}

func (m *marcosFalsos) Liberar(_ context.Context, _ *vm.Pagina) error {
	m.libres++
	return nil
}

type instaladorFalso struct {
	paginas map[uint64][]byte
}

func (i *instaladorFalso) Instalar(_ context.Context, _ proc.EspacioDeDirecciones, va uint64, pag *vm.Pagina, _ vm.Permisos) error {
	if _, ok := i.paginas[va]; ok {
		return errors.New("ya mapeada")
	}
	i.paginas[va] = pag.Datos
	return nil
}

type entorno struct {
	d        *Despachador
	plan     *planificadorFalso
	sys      *syscallsFalsas
	inst     *instaladorFalso
	disco    *dispositivos.Disco
	teclado  *dispositivos.Consola
	serial   *dispositivos.Consola
	lapic    *dispositivos.LAPIC
	registro *registro.Registro
}

func nuevoEntorno(t *testing.T) *entorno {
	logger := log.BuildLogger("error")
	reg, err := registro.Abrir("", 16, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	e := &entorno{
		plan:     &planificadorFalso{},
		sys:      &syscallsFalsas{},
		inst:     &instaladorFalso{paginas: make(map[uint64][]byte)},
		disco:    dispositivos.NewDisco(logger),
		teclado:  dispositivos.NewConsola("teclado", logger),
		serial:   dispositivos.NewConsola("serial", logger),
		lapic:    dispositivos.NewLAPIC(),
		registro: reg,
	}
	e.d = &Despachador{
		Log:            logger,
		Tabla:          trampas.Tabla(),
		Fallos:         vm.NewManejadorFallos(logger, &marcosFalsos{libres: 8}, e.inst),
		Syscalls:       e.sys,
		Planificador:   e.plan,
		Ticks:          ticks.NuevoContador(),
		CPUDuenioTicks: 0,
		Disco:          e.disco,
		Teclado:        e.teclado,
		Serial:         e.serial,
		LAPIC:          e.lapic,
		Registro:       reg,
	}
	return e
}

func procesoEnEjecucion(pid int) *proc.Proceso {
	p := proc.NuevoProceso(pid, "prueba")
	p.SetEstado(proc.EstadoExec)
	return p
}

func desdeUsuario(numero uint32) trampas.Trampa {
	return trampas.Trampa{Numero: numero, Privilegio: trampas.PrivilegioUsuario}
}

func desdeKernel(numero uint32) trampas.Trampa {
	return trampas.Trampa{Numero: numero, Privilegio: trampas.PrivilegioKernel}
}

func TestDespachar_Syscall(t *testing.T) {
	ctx := context.Background()

	t.Run("se ejecuta y se reanuda sin ceder la CPU", func(t *testing.T) {
		e := nuevoEntorno(t)
		p := procesoEnEjecucion(1)
		tf := desdeUsuario(trampas.TrampaSyscall)
		tf.Software = true
		tf.Registros.Llamada = 3

		res, err := e.d.Despachar(ctx, tf, p)

		require.NoError(t, err)
		assert.Equal(t, Reanudar, res)
		assert.Equal(t, 1, e.sys.llamadas)
		asociada, ok := p.Trampa()
		require.True(t, ok)
		assert.Equal(t, uint32(3), asociada.Registros.Llamada)
		assert.Empty(t, e.plan.cedidos)
	})

	t.Run("proceso ya marcado no ejecuta la syscall", func(t *testing.T) {
		e := nuevoEntorno(t)
		p := procesoEnEjecucion(1)
		p.Kill()

		res, err := e.d.Despachar(ctx, desdeUsuario(trampas.TrampaSyscall), p)

		require.NoError(t, err)
		assert.Equal(t, Terminado, res)
		assert.Equal(t, 0, e.sys.llamadas)
		assert.Equal(t, []int{1}, e.plan.terminados)
	})

	t.Run("marcado durante la syscall", func(t *testing.T) {
		e := nuevoEntorno(t)
		e.sys.matar = true
		p := procesoEnEjecucion(1)

		res, err := e.d.Despachar(ctx, desdeUsuario(trampas.TrampaSyscall), p)

		require.NoError(t, err)
		assert.Equal(t, Terminado, res)
		assert.Equal(t, 1, e.sys.llamadas)
		assert.Equal(t, []int{1}, e.plan.terminados)
	})

	t.Run("sin proceso es un panic", func(t *testing.T) {
		e := nuevoEntorno(t)
		res, err := e.d.Despachar(ctx, desdeUsuario(trampas.TrampaSyscall), nil)

		assert.Equal(t, Panico, res)
		var errPanico *ErrPanico
		assert.ErrorAs(t, err, &errPanico)
		assert.True(t, e.d.Detenido())
	})
}

func TestDespachar_PageFault(t *testing.T) {
	ctx := context.Background()

	t.Run("mapeo anónimo instala una página en cero", func(t *testing.T) {
		e := nuevoEntorno(t)
		p := procesoEnEjecucion(1)
		_, err := p.Mapeos.Agregar(proc.Mapeo{Base: 0x2000, Longitud: 0x3000, Anonimo: true})
		require.NoError(t, err)
		tf := desdeUsuario(trampas.TrampaPageFault)
		tf.DireccionFallo = 0x2000
		tf.CodigoError = trampas.ErrUsuario | trampas.ErrEscritura

		res, err := e.d.Despachar(ctx, tf, p)

		require.NoError(t, err)
		assert.Equal(t, Reanudar, res)
		require.Len(t, e.inst.paginas, 1)
		assert.Equal(t, make([]byte, vm.TamanioPagina), e.inst.paginas[0x2000])
		assert.False(t, p.Killed())
	})

	t.Run("fuera de todo mapeo se termina", func(t *testing.T) {
		e := nuevoEntorno(t)
		p := procesoEnEjecucion(1)
		_, _ = p.Mapeos.Agregar(proc.Mapeo{Base: 0x1000, Longitud: 0x1000, Anonimo: true})
		_, _ = p.Mapeos.Agregar(proc.Mapeo{Base: 0x5000, Longitud: 0x1000, Anonimo: true})
		tf := desdeUsuario(trampas.TrampaPageFault)
		tf.DireccionFallo = 0x9000

		res, err := e.d.Despachar(ctx, tf, p)

		require.NoError(t, err)
		assert.Equal(t, Terminado, res)
		assert.True(t, p.Killed())
		assert.Empty(t, e.inst.paginas)
		assert.Equal(t, []int{1}, e.plan.terminados)

		conteo, err := e.registro.ContarPorTipo(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, conteo[registro.TipoFalloPagina])
	})

	t.Run("en modo kernel la finalización se difiere", func(t *testing.T) {
		e := nuevoEntorno(t)
		p := procesoEnEjecucion(1)
		tf := desdeKernel(trampas.TrampaPageFault)
		tf.DireccionFallo = 0x9000

		res, err := e.d.Despachar(ctx, tf, p)

		require.NoError(t, err)
		assert.Equal(t, Reanudar, res)
		assert.True(t, p.Killed())
		assert.Empty(t, e.plan.terminados)
		assert.False(t, e.d.Detenido())

		assert.Equal(t, Terminado, e.d.RetornoLlamada(ctx, p))
		assert.Equal(t, []int{1}, e.plan.terminados)
		assert.Equal(t, Terminado, e.d.RetornoLlamada(ctx, p))
		assert.Len(t, e.plan.terminados, 1)
	})

	t.Run("sin proceso es un panic", func(t *testing.T) {
		e := nuevoEntorno(t)
		res, err := e.d.Despachar(ctx, desdeKernel(trampas.TrampaPageFault), nil)
		assert.Equal(t, Panico, res)
		assert.Error(t, err)
	})
}

func TestDespachar_Timer(t *testing.T) {
	ctx := context.Background()

	t.Run("la CPU dueña incrementa y despierta a los que esperan", func(t *testing.T) {
		e := nuevoEntorno(t)
		const esperando = 3
		despiertos := make(chan error, esperando)
		for i := 0; i < esperando; i++ {
			go func() { despiertos <- e.d.Ticks.Esperar(ctx, 1) }()
		}

		tf := desdeKernel(trampas.VectorTimer)
		tf.CPU = 0
		res, err := e.d.Despachar(ctx, tf, nil)

		require.NoError(t, err)
		assert.Equal(t, Reanudar, res)
		assert.Equal(t, uint64(1), e.d.Ticks.Valor())
		assert.Equal(t, uint64(1), e.lapic.Reconocidos(0))
		for i := 0; i < esperando; i++ {
			select {
			case err := <-despiertos:
				assert.NoError(t, err)
			case <-time.After(time.Second):
				t.Fatal("quedó alguien esperando")
			}
		}
	})

	t.Run("otra CPU sólo reconoce", func(t *testing.T) {
		e := nuevoEntorno(t)
		tf := desdeKernel(trampas.VectorTimer)
		tf.CPU = 1

		res, err := e.d.Despachar(ctx, tf, nil)

		require.NoError(t, err)
		assert.Equal(t, Reanudar, res)
		assert.Equal(t, uint64(0), e.d.Ticks.Valor())
		assert.Equal(t, uint64(1), e.lapic.Reconocidos(1))
		assert.Equal(t, uint64(0), e.lapic.Reconocidos(0))
	})

	t.Run("el proceso en ejecución cede la CPU", func(t *testing.T) {
		e := nuevoEntorno(t)
		p := procesoEnEjecucion(4)

		res, err := e.d.Despachar(ctx, desdeUsuario(trampas.VectorTimer), p)

		require.NoError(t, err)
		assert.Equal(t, Reanudar, res)
		assert.Equal(t, []int{4}, e.plan.cedidos)
	})

	t.Run("un proceso que no está en EXEC no cede", func(t *testing.T) {
		e := nuevoEntorno(t)
		p := proc.NuevoProceso(4, "bloqueado")
		p.SetEstado(proc.EstadoBloqueado)

		_, err := e.d.Despachar(ctx, desdeUsuario(trampas.VectorTimer), p)

		require.NoError(t, err)
		assert.Empty(t, e.plan.cedidos)
	})

	t.Run("marcado mientras esperaba la CPU", func(t *testing.T) {
		e := nuevoEntorno(t)
		e.plan.alCeder = func(p *proc.Proceso) { p.Kill() }
		p := procesoEnEjecucion(4)

		res, err := e.d.Despachar(ctx, desdeUsuario(trampas.VectorTimer), p)

		require.NoError(t, err)
		assert.Equal(t, Terminado, res)
		assert.Equal(t, []int{4}, e.plan.cedidos)
		assert.Equal(t, []int{4}, e.plan.terminados)
	})

	t.Run("marcado en modo kernel después de ceder se difiere", func(t *testing.T) {
		e := nuevoEntorno(t)
		e.plan.alCeder = func(p *proc.Proceso) { p.Kill() }
		p := procesoEnEjecucion(4)

		res, err := e.d.Despachar(ctx, desdeKernel(trampas.VectorTimer), p)

		require.NoError(t, err)
		assert.Equal(t, Reanudar, res)
		assert.Empty(t, e.plan.terminados)
	})

	t.Run("proceso ya marcado desde usuario no cede", func(t *testing.T) {
		e := nuevoEntorno(t)
		p := procesoEnEjecucion(4)
		p.Kill()

		res, err := e.d.Despachar(ctx, desdeUsuario(trampas.VectorTimer), p)

		require.NoError(t, err)
		assert.Equal(t, Terminado, res)
		assert.Empty(t, e.plan.cedidos)
	})
}

func TestDespachar_Dispositivos(t *testing.T) {
	ctx := context.Background()
	e := nuevoEntorno(t)

	pet := e.disco.Encolar(2, 7)
	tf := desdeKernel(trampas.VectorDisco)
	tf.CPU = 2
	res, err := e.d.Despachar(ctx, tf, nil)
	require.NoError(t, err)
	assert.Equal(t, Reanudar, res)
	select {
	case <-pet.Hecha():
	default:
		t.Fatal("la petición de disco no se completó")
	}
	assert.Equal(t, uint64(1), e.lapic.Reconocidos(2))

	tf.Numero = trampas.VectorDisco2
	_, err = e.d.Despachar(ctx, tf, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e.lapic.Reconocidos(2))
	assert.Equal(t, uint64(1), e.disco.Completadas())

	e.teclado.Ingresar([]byte("a"))
	tf.Numero = trampas.VectorTeclado
	_, err = e.d.Despachar(ctx, tf, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", string(e.teclado.Leer()))

	e.serial.Ingresar([]byte("b"))
	tf.Numero = trampas.VectorSerial
	_, err = e.d.Despachar(ctx, tf, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", string(e.serial.Leer()))
	assert.Equal(t, uint64(4), e.lapic.Reconocidos(2))
}

func TestDespachar_Espurias(t *testing.T) {
	ctx := context.Background()
	e := nuevoEntorno(t)
	p := procesoEnEjecucion(1)

	for _, v := range []uint32{trampas.VectorIRQ7, trampas.VectorEspurio} {
		res, err := e.d.Despachar(ctx, desdeUsuario(v), p)
		require.NoError(t, err)
		assert.Equal(t, Reanudar, res)
	}

	assert.False(t, p.Killed())
	assert.Equal(t, uint64(2), e.lapic.Reconocidos(0))
	conteo, err := e.registro.ContarPorTipo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, conteo[registro.TipoEspuria])
}

func TestDespachar_TrampaInesperada(t *testing.T) {
	ctx := context.Background()

	t.Run("desde usuario se mata al proceso", func(t *testing.T) {
		e := nuevoEntorno(t)
		p := procesoEnEjecucion(5)

		res, err := e.d.Despachar(ctx, desdeUsuario(trampas.TrampaDivision), p)

		require.NoError(t, err)
		assert.Equal(t, Terminado, res)
		assert.True(t, p.Killed())
		assert.False(t, e.d.Detenido())
		assert.Equal(t, []int{5}, e.plan.terminados)
	})

	t.Run("desde kernel detiene el sistema", func(t *testing.T) {
		e := nuevoEntorno(t)
		p := procesoEnEjecucion(5)
		tf := desdeKernel(trampas.TrampaProteccion)
		tf.CPU = 3
		tf.IP = 0x80102030

		res, err := e.d.Despachar(ctx, tf, p)

		assert.Equal(t, Panico, res)
		var errPanico *ErrPanico
		require.ErrorAs(t, err, &errPanico)
		assert.Equal(t, 5, errPanico.PID)
		assert.Equal(t, trampas.TrampaProteccion, errPanico.Trampa.Numero)
		assert.False(t, p.Killed())
		assert.True(t, e.d.Detenido())

		res, err = e.d.Despachar(ctx, desdeUsuario(trampas.VectorTimer), p)
		assert.Equal(t, Panico, res)
		assert.ErrorIs(t, err, ErrSistemaDetenido)

		conteo, err := e.registro.ContarPorTipo(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, conteo[registro.TipoPanico])
	})

	t.Run("sin proceso detiene el sistema", func(t *testing.T) {
		e := nuevoEntorno(t)
		res, _ := e.d.Despachar(ctx, desdeUsuario(trampas.TrampaInvalidOpcode), nil)
		assert.Equal(t, Panico, res)
	})

	t.Run("int n desde usuario a un vector de kernel es GPF", func(t *testing.T) {
		e := nuevoEntorno(t)
		p := procesoEnEjecucion(6)
		tf := desdeUsuario(trampas.VectorTimer)
		tf.Software = true

		res, err := e.d.Despachar(ctx, tf, p)

		require.NoError(t, err)
		assert.Equal(t, Terminado, res)
		assert.Equal(t, uint64(0), e.d.Ticks.Valor())
		assert.Empty(t, e.plan.cedidos)

		recientes := e.registro.Recientes()
		require.Len(t, recientes, 1)
		assert.Equal(t, trampas.TrampaProteccion, recientes[0].Trampa)
	})
}

func TestDespachar_InterrupcionConProcesoMarcado(t *testing.T) {
	ctx := context.Background()
	e := nuevoEntorno(t)
	p := procesoEnEjecucion(8)
	p.Kill()

	res, err := e.d.Despachar(ctx, desdeUsuario(trampas.VectorTeclado), p)
	require.NoError(t, err)
	assert.Equal(t, Terminado, res)

	// Un proceso ya finalizado no vuelve a terminarse
	res, err = e.d.Despachar(ctx, desdeUsuario(trampas.VectorTeclado), p)
	require.NoError(t, err)
	assert.Equal(t, Terminado, res)
	assert.Len(t, e.plan.terminados, 1)
}

func TestDespachar_InterrupcionesDeProcesoFinalizado(t *testing.T) {
	ctx := context.Background()
	e := nuevoEntorno(t)
	p := procesoEnEjecucion(5)
	p.SetEstado(proc.EstadoExit)

	// La CPU dueña de los ticks todavía tiene asignado el proceso que terminó
	tf := desdeUsuario(trampas.VectorTimer)
	tf.CPU = 0
	res, err := e.d.Despachar(ctx, tf, p)
	require.NoError(t, err)
	assert.Equal(t, Terminado, res)
	assert.Equal(t, uint64(1), e.d.Ticks.Valor())
	assert.Equal(t, uint64(1), e.lapic.Reconocidos(0))

	tf = desdeUsuario(trampas.VectorTeclado)
	tf.CPU = 1
	res, err = e.d.Despachar(ctx, tf, p)
	require.NoError(t, err)
	assert.Equal(t, Terminado, res)
	assert.Equal(t, uint64(1), e.teclado.Interrupciones())
	assert.Equal(t, uint64(1), e.lapic.Reconocidos(1))

	// Lo que es propio del proceso se descarta sin matar ni detener nada
	res, err = e.d.Despachar(ctx, desdeUsuario(trampas.TrampaPageFault), p)
	require.NoError(t, err)
	assert.Equal(t, Terminado, res)
	assert.Empty(t, e.inst.paginas)
	assert.False(t, e.d.Detenido())
	assert.Empty(t, e.plan.terminados)
	assert.Equal(t, 0, e.sys.llamadas)
}

func TestDespacharFinalizado(t *testing.T) {
	ctx := context.Background()
	e := nuevoEntorno(t)

	tf := desdeUsuario(trampas.VectorDisco2)
	tf.CPU = 1
	res, err := e.d.DespacharFinalizado(ctx, tf)
	require.NoError(t, err)
	assert.Equal(t, Terminado, res)
	assert.Equal(t, uint64(1), e.lapic.Reconocidos(1))

	res, err = e.d.DespacharFinalizado(ctx, desdeUsuario(trampas.TrampaSyscall))
	require.NoError(t, err)
	assert.Equal(t, Terminado, res)
	assert.Equal(t, 0, e.sys.llamadas)
	assert.Equal(t, uint64(0), e.d.Ticks.Valor())
}

func TestRetornoLlamada(t *testing.T) {
	ctx := context.Background()
	e := nuevoEntorno(t)

	assert.Equal(t, Reanudar, e.d.RetornoLlamada(ctx, nil))
	p := procesoEnEjecucion(1)
	assert.Equal(t, Reanudar, e.d.RetornoLlamada(ctx, p))
	assert.Empty(t, e.plan.terminados)
}

func TestResultado_String(t *testing.T) {
	assert.Equal(t, "reanudar", Reanudar.String())
	assert.Equal(t, "terminado", Terminado.String())
	assert.Equal(t, "panico", Panico.String())
}
