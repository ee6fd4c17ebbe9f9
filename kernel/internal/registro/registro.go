package registro

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sisoputnfrba/tp-trapkernel/kernel/internal/trampas"
	"github.com/sisoputnfrba/tp-trapkernel/utils/log"
)

type Tipo string

const (
	TipoEspuria       Tipo = "espuria"
	TipoTrampaUsuario Tipo = "trampa_usuario"
	TipoFalloPagina   Tipo = "fallo_pagina"
	TipoPanico        Tipo = "panico"
)

// Evento es un registro de diagnóstico de una trampa
type Evento struct {
	ID          int64     `json:"id"`
	Momento     time.Time `json:"momento"`
	Tipo        Tipo      `json:"tipo"`
	PID         int       `json:"pid"`
	CPU         int       `json:"cpu"`
	Trampa      uint32    `json:"trampa"`
	CodigoError uint32    `json:"codigo_error"`
	IP          uint64    `json:"ip"`
	Direccion   uint64    `json:"direccion"`
	Detalle     string    `json:"detalle"`
}

// NuevoEvento arma el evento a partir del registro de la trampa
func NuevoEvento(tipo Tipo, pid int, tf trampas.Trampa, detalle string) Evento {
	return Evento{
		Momento:     time.Now(),
		Tipo:        tipo,
		PID:         pid,
		CPU:         tf.CPU,
		Trampa:      tf.Numero,
		CodigoError: tf.CodigoError,
		IP:          tf.IP,
		Direccion:   tf.DireccionFallo,
		Detalle:     detalle,
	}
}

// Registro guarda los eventos en SQLite y mantiene los últimos en memoria
type Registro struct {
	Log       *slog.Logger
	db        *sql.DB
	recientes *lru.Cache
}

// Abrir abre (o crea) la base en path. Con path vacío usa una base en memoria.
func Abrir(path string, recientes int, logger *slog.Logger) (*Registro, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("no se pudo abrir la base de eventos: %w", err)
	}
	if path == "" {
		// Cada conexión a :memory: es una base distinta
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("no se pudo activar WAL: %w", err)
	}

	if err := initEventosSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	cache, err := lru.New(recientes)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("no se pudo crear la cache de eventos: %w", err)
	}

	return &Registro{Log: logger, db: db, recientes: cache}, nil
}

func initEventosSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS trap_events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		momento      DATETIME NOT NULL,
		tipo         TEXT NOT NULL,
		pid          INTEGER NOT NULL,
		cpu          INTEGER NOT NULL,
		trampa       INTEGER NOT NULL,
		codigo_error INTEGER NOT NULL,
		ip           INTEGER NOT NULL,
		direccion    INTEGER NOT NULL,
		detalle      TEXT
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("no se pudo crear la tabla trap_events: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_eventos_pid ON trap_events(pid);",
		"CREATE INDEX IF NOT EXISTS idx_eventos_tipo ON trap_events(tipo);",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("no se pudo crear el índice: %w", err)
		}
	}
	return nil
}

// Registrar persiste el evento y devuelve el evento con su ID asignado
func (r *Registro) Registrar(ctx context.Context, e Evento) (Evento, error) {
	if e.Momento.IsZero() {
		e.Momento = time.Now()
	}

	// SQLite no guarda uint64 con el bit alto prendido: las direcciones van como int64
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO trap_events (momento, tipo, pid, cpu, trampa, codigo_error, ip, direccion, detalle)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Momento, string(e.Tipo), e.PID, e.CPU, e.Trampa, e.CodigoError, int64(e.IP), int64(e.Direccion), e.Detalle,
	)
	if err != nil {
		r.Log.Error("No se pudo registrar el evento",
			log.ErrAttr(err),
			log.StringAttr("tipo", string(e.Tipo)),
			log.IntAttr("pid", e.PID),
		)
		return e, fmt.Errorf("no se pudo registrar el evento: %w", err)
	}

	e.ID, err = res.LastInsertId()
	if err != nil {
		return e, err
	}
	r.recientes.Add(e.ID, e)
	return e, nil
}

// Recientes devuelve los últimos eventos registrados, del más nuevo al más viejo
func (r *Registro) Recientes() []Evento {
	eventos := make([]Evento, 0, r.recientes.Len())
	for _, k := range r.recientes.Keys() {
		if v, ok := r.recientes.Peek(k); ok {
			eventos = append(eventos, v.(Evento))
		}
	}
	sort.Slice(eventos, func(i, j int) bool {
		return eventos[i].ID > eventos[j].ID
	})
	return eventos
}

func (r *Registro) ContarPorTipo(ctx context.Context) (map[Tipo]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT tipo, COUNT(*) FROM trap_events GROUP BY tipo")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make(map[Tipo]int)
	for rows.Next() {
		var (
			tipo  string
			count int
		)
		if err := rows.Scan(&tipo, &count); err != nil {
			return nil, err
		}
		res[Tipo(tipo)] = count
	}
	return res, rows.Err()
}

// PorProceso devuelve todos los eventos de pid en orden de llegada
func (r *Registro) PorProceso(ctx context.Context, pid int) ([]Evento, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, momento, tipo, pid, cpu, trampa, codigo_error, ip, direccion, detalle
		FROM trap_events WHERE pid = ? ORDER BY id`, pid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eventos []Evento
	for rows.Next() {
		var (
			e             Evento
			tipo          string
			ip, direccion int64
			detalle       sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Momento, &tipo, &e.PID, &e.CPU, &e.Trampa, &e.CodigoError, &ip, &direccion, &detalle); err != nil {
			return nil, err
		}
		e.Tipo = Tipo(tipo)
		e.IP = uint64(ip)
		e.Direccion = uint64(direccion)
		e.Detalle = detalle.String
		eventos = append(eventos, e)
	}
	return eventos, rows.Err()
}

func (r *Registro) Close() error {
	return r.db.Close()
}
