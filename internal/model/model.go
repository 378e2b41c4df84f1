// Package model содержит доменные сущности сервиса джобмаркет.
package model

import "time"

// ProfileRole описывает роль профиля на площадке.
type ProfileRole string

const (
	ProfileRoleClient     ProfileRole = "client"
	ProfileRoleContractor ProfileRole = "contractor"
)

// Profile представляет участника площадки с денежным балансом в центах.
type Profile struct {
	ID           int64
	FirstName    string
	LastName     string
	Profession   string
	Role         ProfileRole
	BalanceCents int64
}

// FullName возвращает полное имя профиля.
func (p *Profile) FullName() string {
	return p.FirstName + " " + p.LastName
}

// ContractStatus описывает статус контракта.
type ContractStatus string

const (
	ContractStatusNew        ContractStatus = "new"
	ContractStatusInProgress ContractStatus = "in_progress"
	ContractStatusTerminated ContractStatus = "terminated"
)

// Contract описывает контракт между клиентом и подрядчиком.
// ClientName и ContractorName заполняются соединением с profiles при чтении.
type Contract struct {
	ID             int64
	ClientID       int64
	ContractorID   int64
	Terms          string
	Status         ContractStatus
	ClientName     string
	ContractorName string
}

// Job описывает работу по контракту. Оплачивается не более одного раза.
type Job struct {
	ID          int64
	ContractID  int64
	Description string
	PriceCents  int64
	Paid        bool
	PaymentDate *time.Time
	CreatedAt   time.Time
}

// ProfessionEarnings содержит сумму выплат по одной профессии.
type ProfessionEarnings struct {
	Profession       string
	TotalEarnedCents int64
}

// ClientPayments содержит сумму выплат одного клиента.
type ClientPayments struct {
	ID        int64
	FullName  string
	PaidCents int64
}
