package marcos

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrSinMarcos      = errors.New("no hay marcos libres")
	ErrMarcoInvalido  = errors.New("el marco no existe o no está asignado")
	ErrDesalineada    = errors.New("la dirección no está alineada a página")
	ErrYaMapeada      = errors.New("la página ya está mapeada")
	ErrDatosExcedidos = errors.New("los datos no entran en una página")
	ErrFueraDePagina  = errors.New("el acceso cruza el límite de la página")
	ErrConfiguracion  = errors.New("tamaño de memoria o de página inválido")
)

// Entrada es una entrada de la tabla de páginas de un proceso
type Entrada struct {
	Marco     int  `json:"marco"`
	Usuario   bool `json:"usuario"`
	Escritura bool `json:"escritura"`
}

type Metricas struct {
	AccesosTablaDePaginas int `json:"accesos_tabla_de_paginas"`
	PaginasInstaladas     int `json:"paginas_instaladas"`
	LecturasDeMemoria     int `json:"lecturas_de_memoria"`
	EscriturasDeMemoria   int `json:"escrituras_de_memoria"`
}

// Memoria es el espacio de usuario dividido en marcos, con una tabla de páginas por proceso.
// Un marco asignado pero todavía sin instalar no pertenece a ningún proceso.
type Memoria struct {
	mu        sync.Mutex
	tamPagina int
	datos     []byte
	ocupados  []bool
	tablas    map[int]map[uint64]Entrada
	metricas  map[int]*Metricas
}

func Nueva(tamanio, tamPagina int) (*Memoria, error) {
	if tamPagina <= 0 || tamanio < tamPagina || tamanio%tamPagina != 0 {
		return nil, fmt.Errorf("%w: memoria %d, página %d", ErrConfiguracion, tamanio, tamPagina)
	}
	return &Memoria{
		tamPagina: tamPagina,
		datos:     make([]byte, tamanio),
		ocupados:  make([]bool, tamanio/tamPagina),
		tablas:    make(map[int]map[uint64]Entrada),
		metricas:  make(map[int]*Metricas),
	}, nil
}

func (m *Memoria) TamanioPagina() int {
	return m.tamPagina
}

// Asignar reserva el primer marco libre. El marco se entrega en cero.
func (m *Memoria) Asignar() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for marco, ocupado := range m.ocupados {
		if !ocupado {
			m.ocupados[marco] = true
			m.limpiar(marco)
			return marco, nil
		}
	}
	return -1, ErrSinMarcos
}

// Liberar devuelve un marco asignado. Si estaba instalado en alguna tabla, la entrada se quita.
func (m *Memoria) Liberar(marco int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.asignado(marco) {
		return ErrMarcoInvalido
	}
	for _, tabla := range m.tablas {
		for va, e := range tabla {
			if e.Marco == marco {
				delete(tabla, va)
			}
		}
	}
	m.liberar(marco)
	return nil
}

func (m *Memoria) MarcosLibres() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	libres := 0
	for _, ocupado := range m.ocupados {
		if !ocupado {
			libres++
		}
	}
	return libres
}

// Instalar copia datos al marco y agrega la traducción va -> marco en la tabla del proceso
func (m *Memoria) Instalar(pid int, va uint64, datos []byte, e Entrada) error {
	if va%uint64(m.tamPagina) != 0 {
		return ErrDesalineada
	}
	if len(datos) > m.tamPagina {
		return ErrDatosExcedidos
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.asignado(e.Marco) {
		return ErrMarcoInvalido
	}
	tabla, ok := m.tablas[pid]
	if !ok {
		tabla = make(map[uint64]Entrada)
		m.tablas[pid] = tabla
	}
	if _, mapeada := tabla[va]; mapeada {
		return fmt.Errorf("%w: pid %d dirección %#x", ErrYaMapeada, pid, va)
	}

	inicio := e.Marco * m.tamPagina
	copy(m.datos[inicio:inicio+m.tamPagina], datos)
	tabla[va] = e
	m.metricasDe(pid).PaginasInstaladas++
	return nil
}

// Traducir busca la página que contiene va en la tabla del proceso
func (m *Memoria) Traducir(pid int, va uint64) (Entrada, bool) {
	pagina := va - va%uint64(m.tamPagina)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.metricasDe(pid).AccesosTablaDePaginas++
	e, ok := m.tablas[pid][pagina]
	return e, ok
}

// LiberarRango desinstala las páginas de [base, base+longitud) y libera sus marcos. Devuelve cuántas había.
func (m *Memoria) LiberarRango(pid int, base, longitud uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	tabla := m.tablas[pid]
	liberadas := 0
	for va, e := range tabla {
		if va >= base && va-base < longitud {
			delete(tabla, va)
			m.liberar(e.Marco)
			liberadas++
		}
	}
	return liberadas
}

// FinalizarProceso libera todos los marcos del proceso y devuelve sus métricas
func (m *Memoria) FinalizarProceso(pid int) (Metricas, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	liberados := 0
	for _, e := range m.tablas[pid] {
		m.liberar(e.Marco)
		liberados++
	}
	delete(m.tablas, pid)

	metricas := *m.metricasDe(pid)
	delete(m.metricas, pid)
	return metricas, liberados
}

// Leer lee tamanio bytes desde la dirección física. El acceso no puede cruzar de marco.
func (m *Memoria) Leer(pid int, fisica uint64, tamanio int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validarAcceso(fisica, tamanio); err != nil {
		return nil, err
	}
	m.metricasDe(pid).LecturasDeMemoria++

	res := make([]byte, tamanio)
	copy(res, m.datos[fisica:fisica+uint64(tamanio)])
	return res, nil
}

func (m *Memoria) Escribir(pid int, fisica uint64, datos []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validarAcceso(fisica, len(datos)); err != nil {
		return err
	}
	m.metricasDe(pid).EscriturasDeMemoria++

	copy(m.datos[fisica:], datos)
	return nil
}

func (m *Memoria) validarAcceso(fisica uint64, tamanio int) error {
	if fisica >= uint64(len(m.datos)) || !m.ocupados[int(fisica)/m.tamPagina] {
		return ErrMarcoInvalido
	}
	offset := int(fisica) % m.tamPagina
	if tamanio < 0 || offset+tamanio > m.tamPagina {
		return ErrFueraDePagina
	}
	return nil
}

func (m *Memoria) asignado(marco int) bool {
	return marco >= 0 && marco < len(m.ocupados) && m.ocupados[marco]
}

func (m *Memoria) liberar(marco int) {
	m.ocupados[marco] = false
	m.limpiar(marco)
}

func (m *Memoria) limpiar(marco int) {
	inicio := marco * m.tamPagina
	clear(m.datos[inicio : inicio+m.tamPagina])
}

func (m *Memoria) metricasDe(pid int) *Metricas {
	met, ok := m.metricas[pid]
	if !ok {
		met = &Metricas{}
		m.metricas[pid] = met
	}
	return met
}

// Tabla devuelve una copia de la tabla de páginas del proceso, indexada por dirección de página
func (m *Memoria) Tabla(pid int) map[uint64]Entrada {
	m.mu.Lock()
	defer m.mu.Unlock()

	copia := make(map[uint64]Entrada, len(m.tablas[pid]))
	for va, e := range m.tablas[pid] {
		copia[va] = e
	}
	return copia
}
