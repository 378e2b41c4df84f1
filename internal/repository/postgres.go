// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mmeshcher/jobmarket-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrProfileNotFound возвращается, если профиль не найден.
var (
	ErrProfileNotFound = errors.New("profile not found")
	// ErrContractNotFound возвращается, если контракт не найден или не принадлежит профилю.
	ErrContractNotFound = errors.New("contract not found")
	// ErrJobNotFound возвращается, если работа не найдена или плательщик не является её клиентом.
	ErrJobNotFound = errors.New("job not found")
	// ErrContractTerminated возвращается при попытке оплаты работы по расторгнутому контракту.
	ErrContractTerminated = errors.New("contract terminated")
	// ErrInsufficientFunds возвращается при попытке перевода суммы, превышающей баланс.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDepositToSelf возвращается при попытке перевода самому себе.
	ErrDepositToSelf = errors.New("deposit to self forbidden")
	// ErrClientNotFound возвращается, если получатель перевода не существует.
	ErrClientNotFound = errors.New("client not found")
	// ErrNoPaidJobs возвращается, если в диапазоне нет ни одной оплаченной работы.
	ErrNoPaidJobs = errors.New("no paid jobs")
)

// AlreadyPaidError возвращается при повторной оплате работы и несёт дату первой оплаты.
type AlreadyPaidError struct {
	PaymentDate time.Time
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("job already paid on %s", e.PaymentDate.Format(time.RFC3339))
}

// DepositTooLargeError возвращается, если сумма перевода превышает 25% долга отправителя.
type DepositTooLargeError struct {
	TotalOwedCents int64
}

func (e *DepositTooLargeError) Error() string {
	return fmt.Sprintf("deposit exceeds 25%% of total owed %d", e.TotalOwedCents)
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Конфликты сериализации и взаимные блокировки — повторяем транзакцию целиком.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetProfileByID возвращает профиль по идентификатору.
func (r *PostgresRepository) GetProfileByID(ctx context.Context, id int64) (*model.Profile, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, profession, role, balance
		 FROM profiles
		 WHERE id = $1`,
		id,
	)

	var p model.Profile
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Profession, &p.Role, &p.BalanceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return &p, nil
}

// GetContractByID возвращает контракт профиля по идентификатору.
// Возвращает ErrContractNotFound, если контракта нет или профиль не является его стороной.
func (r *PostgresRepository) GetContractByID(ctx context.Context, profileID, contractID int64) (*model.Contract, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT c.id, c.client_id, c.contractor_id, c.terms, c.status,
		        cl.first_name || ' ' || cl.last_name,
		        co.first_name || ' ' || co.last_name
		 FROM contracts c
		 JOIN profiles cl ON cl.id = c.client_id
		 JOIN profiles co ON co.id = c.contractor_id
		 WHERE c.id = $1 AND (c.client_id = $2 OR c.contractor_id = $2)`,
		contractID, profileID,
	)

	var c model.Contract
	var status string
	err := row.Scan(&c.ID, &c.ClientID, &c.ContractorID, &c.Terms, &status, &c.ClientName, &c.ContractorName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, fmt.Errorf("get contract: %w", err)
	}
	c.Status = model.ContractStatus(status)

	return &c, nil
}

// GetContractsByProfile возвращает контракты, в которых профиль является стороной.
// При includeTerminated = false расторгнутые контракты не включаются.
func (r *PostgresRepository) GetContractsByProfile(ctx context.Context, profileID int64, includeTerminated bool) ([]model.Contract, error) {
	query := `SELECT c.id, c.client_id, c.contractor_id, c.terms, c.status,
	                 cl.first_name || ' ' || cl.last_name,
	                 co.first_name || ' ' || co.last_name
	          FROM contracts c
	          JOIN profiles cl ON cl.id = c.client_id
	          JOIN profiles co ON co.id = c.contractor_id
	          WHERE (c.client_id = $1 OR c.contractor_id = $1)`
	if !includeTerminated {
		query += ` AND c.status <> 'terminated'`
	}
	query += ` ORDER BY c.id`

	rows, err := r.pool.Query(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("select contracts: %w", err)
	}
	defer rows.Close()

	var contracts []model.Contract
	for rows.Next() {
		var c model.Contract
		var status string
		if err := rows.Scan(&c.ID, &c.ClientID, &c.ContractorID, &c.Terms, &status, &c.ClientName, &c.ContractorName); err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		c.Status = model.ContractStatus(status)
		contracts = append(contracts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return contracts, nil
}

// GetUnpaidJobs возвращает неоплаченные работы по активным контрактам профиля.
func (r *PostgresRepository) GetUnpaidJobs(ctx context.Context, profileID int64) ([]model.Job, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT j.id, j.contract_id, j.description, j.price, j.paid, j.payment_date, j.created_at
		 FROM jobs j
		 JOIN contracts c ON c.id = j.contract_id
		 WHERE NOT j.paid
		   AND c.status = 'in_progress'
		   AND (c.client_id = $1 OR c.contractor_id = $1)
		 ORDER BY j.id`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("select unpaid jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.ContractID, &j.Description, &j.PriceCents, &j.Paid, &j.PaymentDate, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return jobs, nil
}

// BestProfession возвращает профессию с наибольшей суммой выплат за период.
// При равенстве сумм выбирается первая профессия в алфавитном порядке.
func (r *PostgresRepository) BestProfession(ctx context.Context, start, end *time.Time) (*model.ProfessionEarnings, error) {
	query := `SELECT p.profession, COALESCE(SUM(j.price), 0)::bigint AS total
	          FROM profiles p
	          JOIN contracts c ON c.contractor_id = p.id
	          JOIN jobs j ON j.contract_id = c.id
	          WHERE p.role = 'contractor' AND j.paid`
	args := make([]any, 0, 2)
	if start != nil {
		args = append(args, *start)
		query += fmt.Sprintf(" AND j.payment_date >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND j.payment_date <= $%d", len(args))
	}
	query += ` GROUP BY p.profession ORDER BY total DESC, p.profession LIMIT 1`

	var res model.ProfessionEarnings
	err := r.pool.QueryRow(ctx, query, args...).Scan(&res.Profession, &res.TotalEarnedCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPaidJobs
		}
		return nil, fmt.Errorf("best profession: %w", err)
	}

	return &res, nil
}

// BestClients возвращает не более limit клиентов с наибольшей суммой оплаченных работ за период.
func (r *PostgresRepository) BestClients(ctx context.Context, start, end *time.Time, limit int) ([]model.ClientPayments, error) {
	query := `SELECT p.id, p.first_name || ' ' || p.last_name AS full_name, COALESCE(SUM(j.price), 0)::bigint AS paid
	          FROM profiles p
	          JOIN contracts c ON c.client_id = p.id
	          JOIN jobs j ON j.contract_id = c.id
	          WHERE p.role = 'client' AND j.paid`
	args := make([]any, 0, 3)
	if start != nil {
		args = append(args, *start)
		query += fmt.Sprintf(" AND j.payment_date >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND j.payment_date <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" GROUP BY p.id ORDER BY paid DESC, p.id LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("best clients: %w", err)
	}
	defer rows.Close()

	var res []model.ClientPayments
	for rows.Next() {
		var c model.ClientPayments
		if err := rows.Scan(&c.ID, &c.FullName, &c.PaidCents); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
