package domain

import "errors"

var (
	ErrInsufficientData = errors.New("insufficient candle data")
	ErrNotFound         = errors.New("not found")
	ErrPositionOpen     = errors.New("position already open")
	ErrNoPosition       = errors.New("no open position")
	ErrMaintenance      = errors.New("exchange under maintenance")
	ErrRateLimited      = errors.New("rate limited")
	ErrOrderRejected    = errors.New("order rejected by exchange")
	ErrInvalidOrder     = errors.New("invalid order parameters")
)
