package model

import (
	"fmt"
	"strings"
)

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "PENDING"
	OrderStatusConfirmed    OrderStatus = "CONFIRMED"
	OrderStatusInProduction OrderStatus = "IN_PRODUCTION"
	OrderStatusReady        OrderStatus = "READY"
	OrderStatusDelivered    OrderStatus = "DELIVERED"
	OrderStatusCancelled    OrderStatus = "CANCELLED"
)

var knownStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusInProduction,
	OrderStatusReady,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// NormalizeStatus приводит сохранённое значение статуса к каноничному виду.
// Пустое значение считается PENDING.
func NormalizeStatus(raw string) OrderStatus {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return OrderStatusPending
	}
	return OrderStatus(s)
}

// ParseOrderStatus разбирает статус из пользовательского ввода и проверяет, что он входит в допустимый набор.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range knownStatuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", raw)
}
