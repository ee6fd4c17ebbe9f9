package ticks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContador_Incrementar(t *testing.T) {
	c := NuevoContador()
	assert.Equal(t, uint64(0), c.Valor())
	assert.Equal(t, uint64(1), c.Incrementar())
	assert.Equal(t, uint64(2), c.Incrementar())
	assert.Equal(t, uint64(2), c.Valor())
}

func TestContador_IncrementosConcurrentes(t *testing.T) {
	c := NuevoContador()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Incrementar()
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(50), c.Valor())
}

func TestContador_DespiertaATodos(t *testing.T) {
	c := NuevoContador()
	const esperando = 5

	var wg sync.WaitGroup
	errs := make(chan error, esperando)
	for i := 0; i < esperando; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Esperar(context.Background(), 1)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	c.Incrementar()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestContador_EsperarYaAlcanzado(t *testing.T) {
	c := NuevoContador()
	c.Incrementar()
	require.NoError(t, c.Esperar(context.Background(), 1))
	require.NoError(t, c.Esperar(context.Background(), 0))
}

func TestContador_EsperarCancelado(t *testing.T) {
	c := NuevoContador()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c.Incrementar()
	err := c.Esperar(ctx, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
