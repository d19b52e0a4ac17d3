package domain

import "time"

// Коды услуг Correios.
const (
	FreightServiceSEDEX = "03220"
	FreightServicePAC   = "03298"
)

// Package: габариты и вес отправления для расчёта доставки.
type Package struct {
	WeightGrams int32
	LengthCm    int32
	WidthCm     int32
	HeightCm    int32
}

// FreightRequest: запрос цены доставки.
type FreightRequest struct {
	OriginZip      string
	DestinationZip string
	ServiceCode    string
	Package        Package
	DeclaredMinor  int64
}

// FreightQuote: ответ службы доставки.
type FreightQuote struct {
	ServiceCode  string
	PriceMinor   int64
	DeliveryDays int
	QuotedAt     time.Time
}
