// Package freight считает габариты отправления и стоимость доставки.
package freight

import "github.com/vladislavdragonenkov/storefront/internal/domain"

// Ограничения Correios для посылки (см. руководство по формату "caixa/pacote").
const (
	minWeightGrams = 300
	minLengthCm    = 16
	minWidthCm     = 11
	minHeightCm    = 2
	maxSideCm      = 100
	// volumetricDivisor переводит см³ в килограммы.
	volumetricDivisor = 6000
)

// PackageMetrics складывает позиции в одну посылку: длина и ширина берутся по
// максимуму, высоты единиц складываются. Размеры приводятся к пределам Correios.
func PackageMetrics(items []domain.CartItem) domain.Package {
	var pkg domain.Package
	for _, item := range items {
		if item.Qty <= 0 {
			continue
		}
		pkg.WeightGrams += item.WeightGrams * item.Qty
		pkg.LengthCm = max(pkg.LengthCm, item.LengthCm)
		pkg.WidthCm = max(pkg.WidthCm, item.WidthCm)
		pkg.HeightCm += item.HeightCm * item.Qty
	}

	pkg.WeightGrams = max(pkg.WeightGrams, minWeightGrams)
	pkg.LengthCm = clamp(pkg.LengthCm, minLengthCm, maxSideCm)
	pkg.WidthCm = clamp(pkg.WidthCm, minWidthCm, maxSideCm)
	pkg.HeightCm = clamp(pkg.HeightCm, minHeightCm, maxSideCm)
	return pkg
}

// VolumetricGrams: объёмный вес L·W·H/6000 кг в граммах.
func VolumetricGrams(pkg domain.Package) int32 {
	volume := int64(pkg.LengthCm) * int64(pkg.WidthCm) * int64(pkg.HeightCm)
	return int32(volume * 1000 / volumetricDivisor)
}

// BillableGrams возвращает тарифицируемый вес, большее из реального и объёмного.
func BillableGrams(pkg domain.Package) int32 {
	return max(pkg.WeightGrams, VolumetricGrams(pkg))
}

func clamp(v, lo, hi int32) int32 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
