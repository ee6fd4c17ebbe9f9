package planificadores

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/proc"
	"github.com/sisoputnfrba/tp-trapkernel/kernel/pkg/cpu"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

const (
	espera = time.Second
	paso   = 5 * time.Millisecond
)

func nuevoPlanificador(t *testing.T, cpus int) *Service {
	httpmock.Activate(t)
	t.Cleanup(httpmock.DeactivateAndReset)

	p := NewPlanificador(log.BuildLogger("error"), cpus)
	for i := 0; i < cpus; i++ {
		id := &CpuIdentificacion{IP: "127.0.0.1", Puerto: 8000 + i, ID: fmt.Sprintf("cpu-%d", i)}
		httpmock.RegisterResponder("POST",
			fmt.Sprintf("http://%s:%d/cpu/proceso", id.IP, id.Puerto),
			httpmock.NewStringResponder(200, `{}`))
		_, err := p.AddCpuConectada(id)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go p.PlanificadorCortoPlazoFIFO(ctx)
	t.Cleanup(cancel)
	return p
}

func enEstado(p *proc.Proceso, e proc.Estado) func() bool {
	return func() bool { return p.Estado() == e }
}

func TestService_AddCpuConectada(t *testing.T) {
	p := NewPlanificador(log.BuildLogger("error"), 1)

	c, err := p.AddCpuConectada(&CpuIdentificacion{IP: "a", Puerto: 1, ID: "cpu-1"})
	require.NoError(t, err)
	assert.True(t, c.Estado)
	assert.Equal(t, 1, p.CantidadDeCpusDisponibles())

	// Reconexión de la misma CPU
	c2, err := p.AddCpuConectada(&CpuIdentificacion{IP: "b", Puerto: 2, ID: "cpu-1"})
	require.NoError(t, err)
	assert.Same(t, c, c2)
	assert.Equal(t, "b", c.IP)
	assert.Equal(t, 1, p.CantidadDeCpusDisponibles())

	_, err = p.AddCpuConectada(&CpuIdentificacion{IP: "c", Puerto: 3, ID: "cpu-2"})
	assert.ErrorIs(t, err, ErrDemasiadasCPUs)
}

func TestService_AdmitirYEjecutar(t *testing.T) {
	p := nuevoPlanificador(t, 2)
	a := proc.NuevoProceso(1, "a")
	b := proc.NuevoProceso(2, "b")

	require.NoError(t, p.Admitir(a))
	require.NoError(t, p.Admitir(b))
	assert.Error(t, p.Admitir(a))

	assert.Eventually(t, enEstado(a, proc.EstadoExec), espera, paso)
	assert.Eventually(t, enEstado(b, proc.EstadoExec), espera, paso)
	assert.NotNil(t, p.CPUDe(1))
	assert.NotNil(t, p.CPUDe(2))
	assert.NotSame(t, p.CPUDe(1), p.CPUDe(2))
	assert.Equal(t, 0, p.CantidadDeCpusDisponibles())
}

func TestService_CederConUnaSolaCPU(t *testing.T) {
	p := nuevoPlanificador(t, 1)
	a := proc.NuevoProceso(1, "a")
	b := proc.NuevoProceso(2, "b")

	require.NoError(t, p.Admitir(a))
	assert.Eventually(t, enEstado(a, proc.EstadoExec), espera, paso)
	require.NoError(t, p.Admitir(b))
	assert.Never(t, enEstado(b, proc.EstadoExec), 50*time.Millisecond, paso)

	cedioA := make(chan error, 1)
	go func() { cedioA <- p.Ceder(context.Background(), a) }()

	assert.Eventually(t, enEstado(b, proc.EstadoExec), espera, paso)
	assert.Equal(t, proc.EstadoReady, a.Estado())

	// b queda esperando en Ready mientras a vuelve a EXEC
	go func() { _ = p.Ceder(context.Background(), b) }()
	select {
	case err := <-cedioA:
		require.NoError(t, err)
	case <-time.After(espera):
		t.Fatal("a nunca recuperó la CPU")
	}
	assert.Equal(t, proc.EstadoExec, a.Estado())
	assert.Eventually(t, enEstado(b, proc.EstadoReady), espera, paso)
}

func TestService_CederSinCompetencia(t *testing.T) {
	p := nuevoPlanificador(t, 1)
	a := proc.NuevoProceso(1, "a")
	require.NoError(t, p.Admitir(a))
	assert.Eventually(t, enEstado(a, proc.EstadoExec), espera, paso)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Ceder(context.Background(), a))
		assert.Equal(t, proc.EstadoExec, a.Estado())
	}
}

func TestService_CederFueraDeExec(t *testing.T) {
	p := NewPlanificador(log.BuildLogger("error"), 1)
	a := proc.NuevoProceso(1, "a")
	assert.Error(t, p.Ceder(context.Background(), a))
}

func TestService_CederCancelado(t *testing.T) {
	p := nuevoPlanificador(t, 1)
	a := proc.NuevoProceso(1, "a")
	b := proc.NuevoProceso(2, "b")
	require.NoError(t, p.Admitir(a))
	assert.Eventually(t, enEstado(a, proc.EstadoExec), espera, paso)
	require.NoError(t, p.Admitir(b))

	// b toma la CPU y no la suelta
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := p.Ceder(ctx, a)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, proc.EstadoExec, b.Estado())
	assert.Equal(t, proc.EstadoReady, a.Estado())
	assert.Equal(t, 1, p.CantidadReady())
}

func TestService_TerminarDespiertaAlQueEspera(t *testing.T) {
	p := nuevoPlanificador(t, 1)
	a := proc.NuevoProceso(1, "a")
	b := proc.NuevoProceso(2, "b")

	var finalizados []int
	p.AlFinalizar = func(_ context.Context, pr *proc.Proceso) {
		finalizados = append(finalizados, pr.PID)
	}

	require.NoError(t, p.Admitir(a))
	assert.Eventually(t, enEstado(a, proc.EstadoExec), espera, paso)
	require.NoError(t, p.Admitir(b))

	cedio := make(chan error, 1)
	go func() { cedio <- p.Ceder(context.Background(), a) }()
	assert.Eventually(t, enEstado(b, proc.EstadoExec), espera, paso)

	// a está en Ready esperando turno y b nunca cede
	p.Terminar(context.Background(), a)
	select {
	case err := <-cedio:
		assert.NoError(t, err)
	case <-time.After(espera):
		t.Fatal("Terminar no despertó a quien esperaba turno")
	}
	assert.Equal(t, proc.EstadoExit, a.Estado())
	assert.Equal(t, 0, p.CantidadReady())

	p.Terminar(context.Background(), b)
	p.Terminar(context.Background(), b)
	assert.Equal(t, []int{1, 2}, finalizados)
	assert.Len(t, p.Finalizados(), 2)
	assert.Eventually(t, func() bool { return p.CantidadDeCpusDisponibles() == 1 }, espera, paso)
}

// asignaciones registra los pids que recibió cada CPU en /cpu/proceso
type asignaciones struct {
	mu     sync.Mutex
	porCPU map[int][]int
}

func registrarAsignaciones(t *testing.T, cpus int) *asignaciones {
	t.Helper()
	a := &asignaciones{porCPU: make(map[int][]int)}
	for i := 0; i < cpus; i++ {
		puerto := 8000 + i
		httpmock.RegisterResponder("POST", fmt.Sprintf("http://127.0.0.1:%d/cpu/proceso", puerto),
			func(req *http.Request) (*http.Response, error) {
				var body cpu.ProcesoCpu
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
				}
				a.mu.Lock()
				a.porCPU[puerto] = append(a.porCPU[puerto], body.PID)
				a.mu.Unlock()
				return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
			})
	}
	return a
}

func (a *asignaciones) de(puerto int) []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.porCPU[puerto]...)
}

func TestService_CederDejaOciosaLaCPUAnterior(t *testing.T) {
	p := nuevoPlanificador(t, 2)
	asig := registrarAsignaciones(t, 2)
	a := proc.NuevoProceso(1, "a")

	require.NoError(t, p.Admitir(a))
	assert.Eventually(t, enEstado(a, proc.EstadoExec), espera, paso)
	anterior := p.CPUDe(1)
	require.NotNil(t, anterior)

	require.NoError(t, p.Ceder(context.Background(), a))
	assert.Equal(t, proc.EstadoExec, a.Estado())

	// La CPU que cedió recibe pid 0 antes de que el proceso vuelva a ejecutar en alguna CPU
	recibidos := asig.de(anterior.Puerto)
	require.GreaterOrEqual(t, len(recibidos), 2)
	assert.Equal(t, []int{1, 0}, recibidos[:2])

	actual := p.CPUDe(1)
	require.NotNil(t, actual)
	assert.Equal(t, 1, actual.PID)
	if actual != anterior {
		assert.Equal(t, 0, anterior.PID)
	}
	assert.Equal(t, 1, p.CantidadDeCpusDisponibles())
}

func TestService_TerminarDejaOciosaLaCPU(t *testing.T) {
	p := nuevoPlanificador(t, 2)
	asig := registrarAsignaciones(t, 2)
	a := proc.NuevoProceso(1, "a")

	require.NoError(t, p.Admitir(a))
	assert.Eventually(t, enEstado(a, proc.EstadoExec), espera, paso)
	c := p.CPUDe(1)
	require.NotNil(t, c)

	p.Terminar(context.Background(), a)
	assert.Equal(t, []int{1, 0}, asig.de(c.Puerto))
	assert.Equal(t, 0, c.PID)
	assert.Nil(t, p.CPUDe(1))
	assert.Equal(t, 2, p.CantidadDeCpusDisponibles())
}
