package marcos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pagina = 64

func nueva(t *testing.T, marcos int) *Memoria {
	t.Helper()
	m, err := Nueva(marcos*pagina, pagina)
	require.NoError(t, err)
	return m
}

func TestNueva_ConfiguracionInvalida(t *testing.T) {
	tests := []struct {
		name      string
		tamanio   int
		tamPagina int
	}{
		{name: "página cero", tamanio: 128, tamPagina: 0},
		{name: "memoria menor a una página", tamanio: 32, tamPagina: 64},
		{name: "no es múltiplo", tamanio: 100, tamPagina: 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Nueva(tt.tamanio, tt.tamPagina)
			assert.ErrorIs(t, err, ErrConfiguracion)
		})
	}
}

func TestMemoria_AsignarYLiberar(t *testing.T) {
	m := nueva(t, 2)

	a, err := m.Asignar()
	require.NoError(t, err)
	b, err := m.Asignar()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 0, m.MarcosLibres())

	_, err = m.Asignar()
	assert.ErrorIs(t, err, ErrSinMarcos)

	require.NoError(t, m.Liberar(a))
	assert.ErrorIs(t, m.Liberar(a), ErrMarcoInvalido)
	assert.ErrorIs(t, m.Liberar(99), ErrMarcoInvalido)
	assert.Equal(t, 1, m.MarcosLibres())
}

func TestMemoria_InstalarYTraducir(t *testing.T) {
	m := nueva(t, 4)
	marco, err := m.Asignar()
	require.NoError(t, err)

	require.NoError(t, m.Instalar(1, 0x1000, []byte("hola"), Entrada{Marco: marco, Usuario: true, Escritura: true}))

	e, ok := m.Traducir(1, 0x1000+10)
	require.True(t, ok)
	assert.Equal(t, marco, e.Marco)
	assert.True(t, e.Usuario)

	_, ok = m.Traducir(2, 0x1000)
	assert.False(t, ok, "las tablas son por proceso")

	datos, err := m.Leer(1, uint64(marco*pagina), 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("hola"), datos)

	otro, err := m.Asignar()
	require.NoError(t, err)
	assert.ErrorIs(t, m.Instalar(1, 0x1000, nil, Entrada{Marco: otro}), ErrYaMapeada)
	assert.ErrorIs(t, m.Instalar(1, 0x1001, nil, Entrada{Marco: otro}), ErrDesalineada)
	assert.ErrorIs(t, m.Instalar(1, 0x2000, nil, Entrada{Marco: 3}), ErrMarcoInvalido)
	assert.ErrorIs(t, m.Instalar(1, 0x2000, make([]byte, pagina+1), Entrada{Marco: otro}), ErrDatosExcedidos)
}

func TestMemoria_LeerYEscribir(t *testing.T) {
	m := nueva(t, 2)
	marco, err := m.Asignar()
	require.NoError(t, err)
	base := uint64(marco * pagina)

	require.NoError(t, m.Escribir(1, base+8, []byte{1, 2, 3}))
	datos, err := m.Leer(1, base+8, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, datos)

	_, err = m.Leer(1, base+pagina-2, 4)
	assert.ErrorIs(t, err, ErrFueraDePagina)

	// El otro marco no está asignado
	_, err = m.Leer(1, uint64((1-marco)*pagina), 1)
	assert.ErrorIs(t, err, ErrMarcoInvalido)
	_, err = m.Leer(1, 1<<40, 1)
	assert.ErrorIs(t, err, ErrMarcoInvalido)
}

func TestMemoria_LiberarRango(t *testing.T) {
	m := nueva(t, 4)
	for i := 0; i < 3; i++ {
		marco, err := m.Asignar()
		require.NoError(t, err)
		require.NoError(t, m.Instalar(1, uint64(0x1000+i*pagina), nil, Entrada{Marco: marco}))
	}

	assert.Equal(t, 2, m.LiberarRango(1, 0x1000, 2*pagina))
	assert.Equal(t, 3, m.MarcosLibres())

	_, ok := m.Traducir(1, 0x1000)
	assert.False(t, ok)
	_, ok = m.Traducir(1, 0x1000+2*pagina)
	assert.True(t, ok)
}

func TestMemoria_FinalizarProceso(t *testing.T) {
	m := nueva(t, 4)
	marco, err := m.Asignar()
	require.NoError(t, err)
	require.NoError(t, m.Instalar(7, 0, []byte{9}, Entrada{Marco: marco, Escritura: true}))
	_, _ = m.Traducir(7, 0)
	require.NoError(t, m.Escribir(7, uint64(marco*pagina), []byte{1}))

	metricas, liberados := m.FinalizarProceso(7)
	assert.Equal(t, 1, liberados)
	assert.Equal(t, Metricas{AccesosTablaDePaginas: 1, PaginasInstaladas: 1, EscriturasDeMemoria: 1}, metricas)
	assert.Equal(t, 4, m.MarcosLibres())

	// El marco se entrega en cero aunque antes tuviera datos
	marco, err = m.Asignar()
	require.NoError(t, err)
	datos, err := m.Leer(8, uint64(marco*pagina), 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, datos)
}
