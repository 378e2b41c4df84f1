package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/jobmarket-system/internal/model"
)

// jobPaymentRow содержит данные работы и её контракта, необходимые для решения об оплате.
type jobPaymentRow struct {
	contractorID   int64
	contractStatus model.ContractStatus
	paid           bool
	paymentDate    *time.Time
	priceCents     int64
}

// checkJobPayable проверяет бизнес-правила оплаты работы.
// Порядок проверок фиксирован: расторгнутый контракт раньше повторной оплаты.
func checkJobPayable(j *jobPaymentRow) error {
	if j.contractStatus == model.ContractStatusTerminated {
		return ErrContractTerminated
	}
	if j.paid {
		paidAt := time.Time{}
		if j.paymentDate != nil {
			paidAt = *j.paymentDate
		}
		return &AlreadyPaidError{PaymentDate: paidAt}
	}
	return nil
}

// checkDepositAllowed проверяет бизнес-правила перевода между пользователями.
// Нехватка средств проверяется раньше лимита. Лимит — 25% от суммы
// неоплаченных работ отправителя как клиента; сравнение в центах точное.
func checkDepositAllowed(balanceCents, amountCents, totalOwedCents int64) error {
	if balanceCents < amountCents {
		return ErrInsufficientFunds
	}
	if amountCents*4 > totalOwedCents {
		return &DepositTooLargeError{TotalOwedCents: totalOwedCents}
	}
	return nil
}

// lockProfiles блокирует строки профилей в порядке возрастания id,
// чтобы встречные переводы не взаимоблокировались.
func lockProfiles(ctx context.Context, tx pgx.Tx, ids ...int64) error {
	rows, err := tx.Query(ctx,
		`SELECT id FROM profiles WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("lock profiles: %w", err)
	}
	defer rows.Close()

	locked := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan locked profile: %w", err)
		}
		locked[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return ErrProfileNotFound
		}
	}

	return nil
}

// transferBalance атомарно переносит amountCents с баланса from на баланс to:
// либо применяются оба изменения, либо ни одного. Вызывается внутри открытой
// транзакции, строки профилей должны быть уже заблокированы вызывающим.
func transferBalance(ctx context.Context, tx pgx.Tx, fromID, toID, amountCents int64) error {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance FROM profiles WHERE id = $1`, fromID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("select balance: %w", err)
	}

	if balance < amountCents {
		return ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`UPDATE profiles SET balance = balance - $2 WHERE id = $1`,
		fromID, amountCents,
	); err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE profiles SET balance = balance + $2 WHERE id = $1`,
		toID, amountCents,
	); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}

	return nil
}

// PayJob оплачивает работу jobID с баланса клиента payerID на баланс подрядчика.
// Вся операция выполняется в одной транзакции; при нарушении любого
// бизнес-правила транзакция откатывается без частичных изменений.
func (r *PostgresRepository) PayJob(ctx context.Context, payerID, jobID int64) error {
	return r.withRetry(ctx, func() error {
		return r.payJob(ctx, payerID, jobID)
	})
}

func (r *PostgresRepository) payJob(ctx context.Context, payerID, jobID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку работы: параллельная оплата той же работы сериализуется
	// и вторая попытка видит уже выставленный признак paid.
	row := tx.QueryRow(ctx,
		`SELECT c.contractor_id, c.status, j.paid, j.payment_date, j.price
		 FROM jobs j
		 JOIN contracts c ON c.id = j.contract_id
		 WHERE j.id = $1 AND c.client_id = $2
		 FOR UPDATE OF j`,
		jobID, payerID,
	)

	var jp jobPaymentRow
	var status string
	err = row.Scan(&jp.contractorID, &status, &jp.paid, &jp.paymentDate, &jp.priceCents)
	if err != nil {
		// Несуществующая работа и чужая работа неразличимы для вызывающего.
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrJobNotFound
		}
		return fmt.Errorf("select job for payment: %w", err)
	}
	jp.contractStatus = model.ContractStatus(status)

	if err := checkJobPayable(&jp); err != nil {
		return err
	}

	if err := lockProfiles(ctx, tx, payerID, jp.contractorID); err != nil {
		return err
	}

	if err := transferBalance(ctx, tx, payerID, jp.contractorID, jp.priceCents); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE jobs SET paid = TRUE, payment_date = now() WHERE id = $1`,
		jobID,
	); err != nil {
		return fmt.Errorf("mark job paid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// DepositToPeer переводит amountCents с баланса отправителя на баланс получателя.
// Сумма ограничена 25% от общей стоимости неоплаченных работ отправителя как клиента.
func (r *PostgresRepository) DepositToPeer(ctx context.Context, senderID, recipientID, amountCents int64) error {
	return r.withRetry(ctx, func() error {
		return r.depositToPeer(ctx, senderID, recipientID, amountCents)
	})
}

func (r *PostgresRepository) depositToPeer(ctx context.Context, senderID, recipientID, amountCents int64) error {
	if senderID == recipientID {
		return ErrDepositToSelf
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`,
		recipientID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check recipient: %w", err)
	}
	if !exists {
		return ErrClientNotFound
	}

	var totalOwed int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(j.price), 0)::bigint
		 FROM jobs j
		 JOIN contracts c ON c.id = j.contract_id
		 WHERE NOT j.paid AND c.client_id = $1`,
		senderID,
	).Scan(&totalOwed)
	if err != nil {
		return fmt.Errorf("sum unpaid jobs: %w", err)
	}

	if err := lockProfiles(ctx, tx, senderID, recipientID); err != nil {
		return err
	}

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM profiles WHERE id = $1`,
		senderID,
	).Scan(&balance)
	if err != nil {
		return fmt.Errorf("select sender balance: %w", err)
	}

	if err := checkDepositAllowed(balance, amountCents, totalOwed); err != nil {
		return err
	}

	if err := transferBalance(ctx, tx, senderID, recipientID, amountCents); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
