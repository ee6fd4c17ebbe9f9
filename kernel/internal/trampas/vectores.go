package trampas

import "sync"

// Compuerta es una entrada de la tabla de vectores
type Compuerta struct {
	Vector     uint32
	EsTrap     bool       // las trap gates no deshabilitan interrupciones
	DPL        Privilegio // privilegio mínimo para invocarla con int n
	Habilitada bool
}

// TablaVectores son las 256 entradas compartidas por todas las CPUs. Se inicializa una única vez.
type TablaVectores struct {
	once       sync.Once
	compuertas [CantVectores]Compuerta
}

var tabla TablaVectores

// Tabla devuelve la tabla global, inicializándola la primera vez
func Tabla() *TablaVectores {
	tabla.Inicializar()
	return &tabla
}

// Inicializar carga las 256 compuertas. Todas son de kernel salvo la de syscall, que es una trap gate
// invocable desde usuario. Llamarla más de una vez no tiene efecto.
func (t *TablaVectores) Inicializar() {
	t.once.Do(func() {
		for i := range t.compuertas {
			t.compuertas[i] = Compuerta{
				Vector:     uint32(i),
				DPL:        PrivilegioKernel,
				Habilitada: true,
			}
		}
		t.compuertas[TrampaSyscall].EsTrap = true
		t.compuertas[TrampaSyscall].DPL = PrivilegioUsuario
	})
}

func (t *TablaVectores) Compuerta(vector uint32) (Compuerta, bool) {
	if vector >= CantVectores {
		return Compuerta{}, false
	}
	return t.compuertas[vector], true
}

// InvocableDesdeUsuario indica si un int n ejecutado en modo usuario puede entrar por el vector
func (t *TablaVectores) InvocableDesdeUsuario(vector uint32) bool {
	c, ok := t.Compuerta(vector)
	return ok && c.Habilitada && c.DPL == PrivilegioUsuario
}

// Normalizar aplica la verificación de DPL que haría el hardware: un int n desde usuario contra una
// compuerta de kernel (o un vector fuera de rango) entra como general protection fault.
func (t *TablaVectores) Normalizar(tf Trampa) Trampa {
	if !tf.Software || !tf.DesdeUsuario() {
		return tf
	}
	if t.InvocableDesdeUsuario(tf.Numero) {
		return tf
	}
	tf.CodigoError = tf.Numero<<3 | 2 // selector del IDT
	tf.Numero = TrampaProteccion
	tf.Software = false
	return tf
}
