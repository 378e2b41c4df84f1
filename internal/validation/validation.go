// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"strconv"
	"time"
)

// ErrInvalidID возвращается, если строка не является неотрицательным целым идентификатором.
var (
	ErrInvalidID = errors.New("invalid id")
	// ErrInvalidLimit возвращается, если limit не является неотрицательным целым числом.
	ErrInvalidLimit = errors.New("invalid limit")
	// ErrInvalidAmount возвращается, если сумма не является положительным числом.
	ErrInvalidAmount = errors.New("amount must be a positive number")
	// ErrInvalidStartTime возвращается, если начало диапазона не является корректной датой.
	ErrInvalidStartTime = errors.New("invalid start time")
	// ErrInvalidEndTime возвращается, если конец диапазона не является корректной датой.
	ErrInvalidEndTime = errors.New("invalid end time")
	// ErrInvalidRange возвращается, если конец диапазона не позже начала.
	ErrInvalidRange = errors.New("end time cannot be before start time")
)

// ParseID разбирает неотрицательный целый идентификатор из строки.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

// ParseLimit разбирает необязательный параметр limit; пустая строка даёт значение по умолчанию.
func ParseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, ErrInvalidLimit
	}
	return limit, nil
}

// ParseAmount проверяет, что сумма перевода — положительное число.
func ParseAmount(amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// dateLayouts — форматы дат, принимаемые в параметрах диапазона.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDateRange разбирает необязательные границы временного диапазона.
// Отсутствующая граница означает неограниченный диапазон с этой стороны.
func ParseDateRange(rawStart, rawEnd string) (start, end *time.Time, err error) {
	if rawStart != "" {
		t, ok := parseDate(rawStart)
		if !ok {
			return nil, nil, ErrInvalidStartTime
		}
		start = &t
	}

	if rawEnd != "" {
		t, ok := parseDate(rawEnd)
		if !ok {
			return nil, nil, ErrInvalidEndTime
		}
		end = &t
	}

	if start != nil && end != nil && !end.After(*start) {
		return nil, nil, ErrInvalidRange
	}

	return start, end, nil
}
