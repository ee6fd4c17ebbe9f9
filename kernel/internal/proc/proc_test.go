package proc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/trampas"
)

func TestProceso_KillEsIdempotente(t *testing.T) {
	p := NuevoProceso(1, "init")
	assert.False(t, p.Killed())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		primeros int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.Kill() {
				mu.Lock()
				primeros++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.True(t, p.Killed())
	assert.Equal(t, 1, primeros)
}

func TestProceso_Estado(t *testing.T) {
	p := NuevoProceso(7, "sh")
	assert.Equal(t, EstadoNew, p.Estado())
	p.SetEstado(EstadoExec)
	assert.Equal(t, EstadoExec, p.Estado())
	assert.Equal(t, "EXEC", p.Estado().String())
	assert.Equal(t, 7, p.Espacio.PID)

	assert.False(t, p.CambiarEstado(EstadoReady, EstadoExit))
	assert.True(t, p.CambiarEstado(EstadoExec, EstadoExit))
	assert.Equal(t, EstadoExit, p.Estado())
}

func TestProceso_Trampa(t *testing.T) {
	p := NuevoProceso(1, "init")
	_, ok := p.Trampa()
	assert.False(t, ok)

	p.AsociarTrampa(trampas.Trampa{Numero: trampas.TrampaSyscall, CPU: 2})
	tf, ok := p.Trampa()
	require.True(t, ok)
	assert.Equal(t, trampas.TrampaSyscall, tf.Numero)
	assert.Equal(t, 2, tf.CPU)
}

func TestProceso_Archivos(t *testing.T) {
	p := NuevoProceso(1, "init")

	for i := 0; i < MaxArchivos; i++ {
		assert.Equal(t, i, p.AbrirArchivo(&Archivo{Legible: true}))
	}
	assert.Equal(t, -1, p.AbrirArchivo(&Archivo{}))

	assert.True(t, p.CerrarArchivo(3))
	assert.False(t, p.CerrarArchivo(3))
	assert.Nil(t, p.Archivo(3))
	assert.Nil(t, p.Archivo(-1))
	assert.Nil(t, p.Archivo(MaxArchivos))
	assert.NotNil(t, p.Archivo(4))

	assert.Equal(t, 3, p.AbrirArchivo(&Archivo{}))
}

func TestTablaMapeos_Agregar(t *testing.T) {
	tests := []struct {
		name    string
		previos []Mapeo
		nuevo   Mapeo
		wantErr error
	}{
		{
			name:  "tabla vacía",
			nuevo: Mapeo{Base: 0x2000, Longitud: 0x3000, Anonimo: true},
		},
		{
			name:    "adyacente no se solapa",
			previos: []Mapeo{{Base: 0x1000, Longitud: 0x1000, Anonimo: true}},
			nuevo:   Mapeo{Base: 0x2000, Longitud: 0x1000, Anonimo: true},
		},
		{
			name:    "solapado por el final",
			previos: []Mapeo{{Base: 0x1000, Longitud: 0x2000, Anonimo: true}},
			nuevo:   Mapeo{Base: 0x2000, Longitud: 0x1000, Anonimo: true},
			wantErr: ErrSolapamiento,
		},
		{
			name:    "contiene a otro",
			previos: []Mapeo{{Base: 0x3000, Longitud: 0x1000, Anonimo: true}},
			nuevo:   Mapeo{Base: 0x1000, Longitud: 0x8000, Anonimo: true},
			wantErr: ErrSolapamiento,
		},
		{
			name:    "longitud cero",
			nuevo:   Mapeo{Base: 0x1000, Anonimo: true},
			wantErr: ErrLongitudInvalida,
		},
		{
			name:    "desborda el espacio",
			nuevo:   Mapeo{Base: 0xFFFFFFFFFFFFF000, Longitud: 0x2000, Anonimo: true},
			wantErr: ErrLongitudInvalida,
		},
		{
			name:    "base desalineada",
			nuevo:   Mapeo{Base: 0x1001, Longitud: 0x1000, Anonimo: true},
			wantErr: ErrBaseDesalineada,
		},
		{
			name:    "descriptor fuera de rango",
			nuevo:   Mapeo{Base: 0x1000, Longitud: 0x1000, FD: MaxArchivos},
			wantErr: ErrDescriptorInvalido,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tabla TablaMapeos
			for _, m := range tt.previos {
				_, err := tabla.Agregar(m)
				require.NoError(t, err)
			}
			slot, err := tabla.Agregar(tt.nuevo)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, -1, slot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.previos), slot)
		})
	}
}

func TestTablaMapeos_LlenaYSlotsEstables(t *testing.T) {
	var tabla TablaMapeos
	for i := 0; i < MaxMapeos; i++ {
		slot, err := tabla.Agregar(Mapeo{Base: uint64(i+1) * 0x10000, Longitud: 0x1000, Anonimo: true})
		require.NoError(t, err)
		assert.Equal(t, i, slot)
	}
	_, err := tabla.Agregar(Mapeo{Base: 0x1000000, Longitud: 0x1000, Anonimo: true})
	assert.ErrorIs(t, err, ErrTablaLlena)

	// Quitar el slot 5 no mueve a los demás y el hueco se reutiliza
	require.NoError(t, tabla.Quitar(6*0x10000))
	_, ok := tabla.Slot(5)
	assert.False(t, ok)
	m, ok := tabla.Slot(6)
	require.True(t, ok)
	assert.Equal(t, uint64(7*0x10000), m.Base)

	slot, err := tabla.Agregar(Mapeo{Base: 0x1000000, Longitud: 0x1000, Anonimo: true})
	require.NoError(t, err)
	assert.Equal(t, 5, slot)
	assert.Len(t, tabla.Ocupados(), MaxMapeos)

	assert.ErrorIs(t, tabla.Quitar(0x42000), ErrMapeoInexistente)
}

func TestTablaMapeos_Buscar(t *testing.T) {
	var tabla TablaMapeos
	_, _ = tabla.Agregar(Mapeo{Base: 0x1000, Longitud: 0x1000, Anonimo: true})
	_, _ = tabla.Agregar(Mapeo{Base: 0x5000, Longitud: 0x1000, FD: 2})

	tests := []struct {
		name     string
		va       uint64
		want     bool
		wantSlot int
	}{
		{name: "base", va: 0x1000, want: true, wantSlot: 0},
		{name: "último byte", va: 0x1FFF, want: true, wantSlot: 0},
		{name: "fin excluido", va: 0x2000, want: false, wantSlot: -1},
		{name: "segundo mapeo", va: 0x5800, want: true, wantSlot: 1},
		{name: "fuera de todo", va: 0x9000, want: false, wantSlot: -1},
		{name: "debajo de todo", va: 0x0, want: false, wantSlot: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, slot, ok := tabla.Buscar(tt.va)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.wantSlot, slot)
		})
	}
}

func TestTabla(t *testing.T) {
	tabla := NuevaTabla()
	a := tabla.Crear("init")
	b := tabla.Crear("sh")

	assert.Equal(t, 1, a.PID)
	assert.Equal(t, 2, b.PID)
	assert.Same(t, b, tabla.Buscar(2))
	assert.Nil(t, tabla.Buscar(0))

	lista := tabla.Listar()
	require.Len(t, lista, 2)
	assert.Equal(t, 1, lista[0].PID)

	tabla.Eliminar(1)
	assert.Nil(t, tabla.Buscar(1))
}
