package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"turnero/internal/models"
	"turnero/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const numeroPad = 3

const turnoColumns = "turno_id, numero, dni, sector_id, estado, operador_id, box_id, fecha_creacion, fecha_llamado, fecha_fin"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CrearTurno(ctx context.Context, input store.CrearTurnoInput) (models.Turno, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Turno{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Single atomic read-modify-write on the sector row: concurrent kiosks
	// serialize on the row lock and each sees a distinct counter value.
	var seq int64
	var codigo string
	row := tx.QueryRow(ctx, `
		UPDATE sectores
		SET numero_turno = numero_turno + 1
		WHERE sector_id = $1 AND activo = TRUE
		RETURNING numero_turno, codigo
	`, input.SectorID)
	if err = row.Scan(&seq, &codigo); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Turno{}, store.ErrSectorNoDisponible
		}
		return models.Turno{}, err
	}

	numero := fmt.Sprintf("%s%0*d", codigo, numeroPad, seq)
	turnoID := uuid.NewString()
	fechaCreacion := input.FechaCreacion
	if fechaCreacion.IsZero() {
		fechaCreacion = time.Now().UTC()
	}

	var turno models.Turno
	row = tx.QueryRow(ctx, `
		INSERT INTO turnos (turno_id, numero, dni, sector_id, estado, fecha_creacion)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+turnoColumns,
		turnoID, numero, input.DNI, input.SectorID, models.EstadoEspera, fechaCreacion)
	if turno, err = scanTurno(row); err != nil {
		return models.Turno{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Turno{}, err
	}
	return turno, nil
}

func (s *Store) GetTurno(ctx context.Context, turnoID string) (models.Turno, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+turnoColumns+`
		FROM turnos
		WHERE turno_id = $1
	`, turnoID)
	turno, err := scanTurno(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Turno{}, store.ErrTurnoNoEncontrado
		}
		return models.Turno{}, err
	}
	return turno, nil
}

func (s *Store) LlamarTurno(ctx context.Context, input store.LlamarInput) (models.Turno, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Turno{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = lockOperador(ctx, tx, input.OperadorID); err != nil {
		return models.Turno{}, err
	}
	if err = ensureOperadorLibre(ctx, tx, input.OperadorID); err != nil {
		return models.Turno{}, err
	}
	if input.BoxID != "" {
		if err = ensureBoxExiste(ctx, tx, input.BoxID); err != nil {
			return models.Turno{}, err
		}
	}

	fechaLlamado := input.FechaLlamado
	if fechaLlamado.IsZero() {
		fechaLlamado = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		UPDATE turnos
		SET estado = $2,
			operador_id = $3,
			box_id = $4,
			fecha_llamado = $5
		WHERE turno_id = $1 AND estado = $6
		RETURNING `+turnoColumns,
		input.TurnoID, models.EstadoLlamado, input.OperadorID, nullIfEmpty(input.BoxID), fechaLlamado, models.EstadoEspera)
	var turno models.Turno
	if turno, err = scanTurno(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = classifyMissedUpdate(ctx, tx, input.TurnoID)
			return models.Turno{}, err
		}
		return models.Turno{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Turno{}, err
	}
	return turno, nil
}

func (s *Store) LlamarSiguiente(ctx context.Context, input store.SiguienteInput) (models.Turno, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Turno{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = lockOperador(ctx, tx, input.OperadorID); err != nil {
		return models.Turno{}, err
	}
	if err = ensureOperadorLibre(ctx, tx, input.OperadorID); err != nil {
		return models.Turno{}, err
	}
	if err = ensureSectorExiste(ctx, tx, input.SectorID); err != nil {
		return models.Turno{}, err
	}
	if input.BoxID != "" {
		if err = ensureBoxExiste(ctx, tx, input.BoxID); err != nil {
			return models.Turno{}, err
		}
	}

	fechaLlamado := input.FechaLlamado
	if fechaLlamado.IsZero() {
		fechaLlamado = time.Now().UTC()
	}

	// Selection and claim are one statement: SKIP LOCKED makes concurrent
	// operators walk past each other's row instead of double-claiming it.
	row := tx.QueryRow(ctx, `
		WITH siguiente AS (
			SELECT turno_id
			FROM turnos
			WHERE sector_id = $1 AND estado = $2
			ORDER BY fecha_creacion ASC, numero ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE turnos
		SET estado = $3,
			operador_id = $4,
			box_id = $5,
			fecha_llamado = $6
		FROM siguiente
		WHERE turnos.turno_id = siguiente.turno_id
		RETURNING `+prefixColumns("turnos"),
		input.SectorID, models.EstadoEspera, models.EstadoLlamado, input.OperadorID, nullIfEmpty(input.BoxID), fechaLlamado)
	var turno models.Turno
	if turno, err = scanTurno(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrColaVacia
			return models.Turno{}, err
		}
		return models.Turno{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Turno{}, err
	}
	return turno, nil
}

// RellamarTurno re-raises the call signal by bumping fecha_llamado; state,
// operator and box stay untouched so monitors see the same turno again.
func (s *Store) RellamarTurno(ctx context.Context, turnoID string, fechaLlamado time.Time) (models.Turno, error) {
	if fechaLlamado.IsZero() {
		fechaLlamado = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE turnos
		SET fecha_llamado = $2
		WHERE turno_id = $1 AND estado = ANY($3)
		RETURNING `+turnoColumns,
		turnoID, fechaLlamado, models.EstadosActivos)
	turno, err := scanTurno(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetTurno(ctx, turnoID); getErr != nil {
				return models.Turno{}, getErr
			}
			return models.Turno{}, store.ErrTurnoNoActivo
		}
		return models.Turno{}, err
	}
	return turno, nil
}

func (s *Store) AtenderTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
	return s.updateEstado(ctx, turnoID, store.Allowed("atender"), models.EstadoAtendiendo, "", fecha)
}

func (s *Store) FinalizarTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
	return s.updateEstado(ctx, turnoID, store.Allowed("finalizar"), models.EstadoFinalizado, "fecha_fin", fecha)
}

func (s *Store) AusentarTurno(ctx context.Context, turnoID string, fecha time.Time) (models.Turno, error) {
	return s.updateEstado(ctx, turnoID, store.Allowed("ausente"), models.EstadoAusente, "fecha_fin", fecha)
}

func (s *Store) updateEstado(ctx context.Context, turnoID string, fromEstados []string, toEstado, fechaColumn string, fecha time.Time) (models.Turno, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Turno{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if fecha.IsZero() {
		fecha = time.Now().UTC()
	}

	query := `
		UPDATE turnos
		SET estado = $2
	`
	args := []interface{}{turnoID, toEstado}
	if fechaColumn != "" {
		query += fmt.Sprintf(", %s = $3", fechaColumn)
		args = append(args, fecha)
	}
	query += fmt.Sprintf(" WHERE turno_id = $1 AND estado = ANY($%d)", len(args)+1)
	args = append(args, fromEstados)
	query += " RETURNING " + turnoColumns

	row := tx.QueryRow(ctx, query, args...)
	var turno models.Turno
	if turno, err = scanTurno(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = classifyMissedUpdate(ctx, tx, turnoID)
			return models.Turno{}, err
		}
		return models.Turno{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Turno{}, err
	}
	return turno, nil
}

func (s *Store) TurnoActivo(ctx context.Context, operadorID string) (models.Turno, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+turnoColumns+`
		FROM turnos
		WHERE operador_id = $1 AND estado = ANY($2)
		ORDER BY fecha_llamado DESC
		LIMIT 1
	`, operadorID, models.EstadosActivos)
	turno, err := scanTurno(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Turno{}, false, nil
		}
		return models.Turno{}, false, err
	}
	return turno, true, nil
}

func (s *Store) ListarActivos(ctx context.Context, sectorIDs []string) ([]models.Turno, error) {
	query := `
		SELECT ` + turnoColumns + `
		FROM turnos
		WHERE estado = ANY($1)
	`
	args := []interface{}{models.EstadosActivos}
	if len(sectorIDs) > 0 {
		query += " AND sector_id = ANY($2)"
		args = append(args, sectorIDs)
	}
	query += " ORDER BY fecha_llamado DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turnos []models.Turno
	for rows.Next() {
		turno, err := scanTurno(rows)
		if err != nil {
			return nil, err
		}
		turnos = append(turnos, turno)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return turnos, nil
}

func (s *Store) PurgarTurnos(ctx context.Context, estados []string) (int, error) {
	for _, estado := range estados {
		if !models.EstadoConocido(estado) {
			return 0, store.ErrEstadoInvalido
		}
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM turnos
		WHERE estado = ANY($1)
	`, estados)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) GetSector(ctx context.Context, sectorID string) (models.Sector, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT sector_id, nombre, codigo, color, activo, numero_turno
		FROM sectores
		WHERE sector_id = $1
	`, sectorID)
	var sector models.Sector
	if err := row.Scan(&sector.SectorID, &sector.Nombre, &sector.Codigo, &sector.Color, &sector.Activo, &sector.NumeroTurno); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Sector{}, store.ErrSectorNoDisponible
		}
		return models.Sector{}, err
	}
	return sector, nil
}

func (s *Store) ListarSectores(ctx context.Context) ([]models.Sector, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sector_id, nombre, codigo, color, activo, numero_turno
		FROM sectores
		WHERE activo = TRUE
		ORDER BY nombre ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sectores []models.Sector
	for rows.Next() {
		var sector models.Sector
		if err := rows.Scan(&sector.SectorID, &sector.Nombre, &sector.Codigo, &sector.Color, &sector.Activo, &sector.NumeroTurno); err != nil {
			return nil, err
		}
		sectores = append(sectores, sector)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sectores, nil
}

// ResetearContador starts a new numbering epoch for the sector.
func (s *Store) ResetearContador(ctx context.Context, sectorID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sectores
		SET numero_turno = 0
		WHERE sector_id = $1
	`, sectorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSectorNoDisponible
	}
	return nil
}

func (s *Store) GetTicketConfig(ctx context.Context) ([]byte, bool, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `
		SELECT config
		FROM ticket_configs
		WHERE es_default = TRUE AND activo = TRUE
		LIMIT 1
	`)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

// lockOperador serializes the busy-check-then-claim sequence per operator so
// two concurrent calls on the same operator's behalf cannot both pass the
// one-active-turno guard.
func lockOperador(ctx context.Context, tx pgx.Tx, operadorID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, operadorID)
	return err
}

func ensureOperadorLibre(ctx context.Context, tx pgx.Tx, operadorID string) error {
	row := tx.QueryRow(ctx, `
		SELECT `+turnoColumns+`
		FROM turnos
		WHERE operador_id = $1 AND estado = ANY($2)
		ORDER BY fecha_llamado DESC
		LIMIT 1
	`, operadorID, models.EstadosActivos)
	activo, err := scanTurno(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	return &store.OperadorOcupadoError{Turno: activo}
}

func ensureSectorExiste(ctx context.Context, tx pgx.Tx, sectorID string) error {
	var activo bool
	row := tx.QueryRow(ctx, `
		SELECT activo
		FROM sectores
		WHERE sector_id = $1
	`, sectorID)
	if err := row.Scan(&activo); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrSectorNoDisponible
		}
		return err
	}
	if !activo {
		return store.ErrSectorNoDisponible
	}
	return nil
}

func ensureBoxExiste(ctx context.Context, tx pgx.Tx, boxID string) error {
	var exists bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM boxes
			WHERE box_id = $1 AND activo = TRUE
		)
	`, boxID)
	if err := row.Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrBoxNoEncontrado
	}
	return nil
}

// classifyMissedUpdate distinguishes a missing turno from a state-guard miss
// after a guarded UPDATE returned no rows.
func classifyMissedUpdate(ctx context.Context, tx pgx.Tx, turnoID string) error {
	var estado string
	row := tx.QueryRow(ctx, `
		SELECT estado
		FROM turnos
		WHERE turno_id = $1
	`, turnoID)
	if err := row.Scan(&estado); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrTurnoNoEncontrado
		}
		return err
	}
	return store.ErrEstadoInvalido
}

func prefixColumns(table string) string {
	return table + ".turno_id, " + table + ".numero, " + table + ".dni, " + table + ".sector_id, " + table + ".estado, " +
		table + ".operador_id, " + table + ".box_id, " + table + ".fecha_creacion, " + table + ".fecha_llamado, " + table + ".fecha_fin"
}

func scanTurno(row pgx.Row) (models.Turno, error) {
	var turno models.Turno
	var dniNull sql.NullString
	var operadorNull sql.NullString
	var boxNull sql.NullString
	var llamadoNull sql.NullTime
	var finNull sql.NullTime
	if err := row.Scan(&turno.TurnoID, &turno.Numero, &dniNull, &turno.SectorID, &turno.Estado, &operadorNull, &boxNull, &turno.FechaCreacion, &llamadoNull, &finNull); err != nil {
		return models.Turno{}, err
	}
	if dniNull.Valid {
		turno.DNI = dniNull.String
	}
	turno.OperadorID = nullStringPtr(operadorNull)
	turno.BoxID = nullStringPtr(boxNull)
	turno.FechaLlamado = nullTimePtr(llamadoNull)
	turno.FechaFin = nullTimePtr(finNull)
	return turno, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
