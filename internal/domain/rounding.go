package domain

import (
	"github.com/shopspring/decimal"
)

// RoundMode define la dirección del redondeo a tick.
type RoundMode int

const (
	RoundFloor RoundMode = iota
	RoundCeil
	RoundNearest
)

// RoundToTick redondea price a un múltiplo de tick usando aritmética decimal
// exacta, para que 0.1+0.2 no produzca precios fuera de la grilla.
func RoundToTick(price, tick float64, mode RoundMode) float64 {
	if tick <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	q := p.Div(t)
	switch mode {
	case RoundCeil:
		q = q.Ceil()
	case RoundNearest:
		q = q.Round(0)
	default:
		q = q.Floor()
	}
	return q.Mul(t).InexactFloat64()
}

// EntryPrice redondea un precio de entrada hacia la ejecución favorable:
// long compra más barato (floor), short vende más caro (ceil).
func EntryPrice(side Side, price, tick float64) float64 {
	if side == Long {
		return RoundToTick(price, tick, RoundFloor)
	}
	return RoundToTick(price, tick, RoundCeil)
}

// ProtectivePrice redondea un stop alejándolo del precio: long floor, short ceil.
func ProtectivePrice(side Side, price, tick float64) float64 {
	if side == Long {
		return RoundToTick(price, tick, RoundFloor)
	}
	return RoundToTick(price, tick, RoundCeil)
}

// FloorToStep redondea una cantidad hacia abajo al lot step.
func FloorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	if qty <= 0 {
		return 0
	}
	// 1e-9 de step absorbe el ruido de divisiones como 50/0.2
	t := decimal.NewFromFloat(step)
	n := decimal.NewFromFloat(qty).Div(t).Add(decimal.New(1, -9)).Floor()
	return n.Mul(t).InexactFloat64()
}

// Decimals devuelve la cantidad de decimales implicados por un incremento
// (0.01 -> 2, 1 -> 0).
func Decimals(increment float64) int32 {
	if increment <= 0 {
		return 8
	}
	exp := decimal.NewFromFloat(increment).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

// FormatIncrement formatea v con los decimales de increment, como lo espera
// el exchange en precios y cantidades.
func FormatIncrement(v, increment float64) string {
	return decimal.NewFromFloat(v).StringFixed(Decimals(increment))
}
