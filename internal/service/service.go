// Package service реализует бизнес-логику сервиса джобмаркет.
package service

import (
	"context"
	"time"

	"github.com/mmeshcher/jobmarket-system/internal/model"
	"github.com/mmeshcher/jobmarket-system/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetProfileByID(ctx context.Context, id int64) (*model.Profile, error)
	GetContractByID(ctx context.Context, profileID, contractID int64) (*model.Contract, error)
	GetContractsByProfile(ctx context.Context, profileID int64, includeTerminated bool) ([]model.Contract, error)
	GetUnpaidJobs(ctx context.Context, profileID int64) ([]model.Job, error)
	PayJob(ctx context.Context, payerID, jobID int64) error
	DepositToPeer(ctx context.Context, senderID, recipientID, amountCents int64) error
	BestProfession(ctx context.Context, start, end *time.Time) (*model.ProfessionEarnings, error)
	BestClients(ctx context.Context, start, end *time.Time, limit int) ([]model.ClientPayments, error)
}

// Service содержит бизнес-логику сервиса джобмаркет.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// GetProfileByID возвращает профиль по идентификатору.
func (s *Service) GetProfileByID(ctx context.Context, id int64) (*model.Profile, error) {
	return s.repo.GetProfileByID(ctx, id)
}

// GetContractByID возвращает контракт профиля.
func (s *Service) GetContractByID(ctx context.Context, profileID, contractID int64) (*model.Contract, error) {
	return s.repo.GetContractByID(ctx, profileID, contractID)
}

// GetContractsByProfile возвращает контракты профиля.
func (s *Service) GetContractsByProfile(ctx context.Context, profileID int64, includeTerminated bool) ([]model.Contract, error) {
	return s.repo.GetContractsByProfile(ctx, profileID, includeTerminated)
}

// GetUnpaidJobs возвращает неоплаченные работы по активным контрактам профиля.
func (s *Service) GetUnpaidJobs(ctx context.Context, profileID int64) ([]model.Job, error) {
	return s.repo.GetUnpaidJobs(ctx, profileID)
}

// PayJob оплачивает работу с баланса клиента на баланс подрядчика.
func (s *Service) PayJob(ctx context.Context, payerID, jobID int64) error {
	return s.repo.PayJob(ctx, payerID, jobID)
}

// DepositToPeer переводит сумму с баланса отправителя на баланс получателя.
func (s *Service) DepositToPeer(ctx context.Context, senderID, recipientID int64, amount float64) error {
	if err := validation.ParseAmount(amount); err != nil {
		return err
	}
	amountCents := int64(amount * 100)
	return s.repo.DepositToPeer(ctx, senderID, recipientID, amountCents)
}

// BestProfession возвращает профессию с наибольшей суммой выплат за период.
func (s *Service) BestProfession(ctx context.Context, start, end *time.Time) (*model.ProfessionEarnings, error) {
	return s.repo.BestProfession(ctx, start, end)
}

// BestClients возвращает клиентов с наибольшей суммой оплаченных работ за период.
func (s *Service) BestClients(ctx context.Context, start, end *time.Time, limit int) ([]model.ClientPayments, error) {
	return s.repo.BestClients(ctx, start, end, limit)
}
