package feature

import (
	"math"
	"strings"

	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

// Record is the fixed-shape feature record derived from one transaction.
// Numeric fields are exposed in a stable order via Vector so downstream
// matrices are statically shaped.
type Record struct {
	CleanMerchant string
	CombinedText  string

	Amount            float64
	AmountAbs         float64
	AmountLog         float64
	IsIncome          float64
	IsRoundAmount     float64
	AmountMagnitude   float64
	DayOfMonth        float64
	DayOfWeek         float64
	Month             float64
	IsWeekend         float64
	IsMonthStart      float64
	IsMonthEnd        float64
	IsHolidaySeason   float64
	MerchantLength    float64
	MerchantWordCount float64
	IsDirectDebit     float64
	IsStandingOrder   float64
	IsCardPayment     float64
	IsOnline          float64
	IsRecurring       float64
	IsSupermarket     float64
	IsGasStation      float64
	IsRestaurant      float64
	IsTransport       float64
	IsTech            float64
	IsEUR             float64
}

// numericFeatureNames lists the numeric fields in Vector order.
var numericFeatureNames = []string{
	"amount",
	"amount_abs",
	"amount_log",
	"is_income",
	"is_round_amount",
	"amount_magnitude",
	"day_of_month",
	"day_of_week",
	"month",
	"is_weekend",
	"is_month_start",
	"is_month_end",
	"is_holiday_season",
	"merchant_length",
	"merchant_word_count",
	"is_direct_debit",
	"is_standing_order",
	"is_card_payment",
	"is_online",
	"is_recurring",
	"is_supermarket",
	"is_gas_station",
	"is_restaurant",
	"is_transport",
	"is_tech",
	"is_eur",
}

// NumericFeatureNames returns the names of the numeric features in the
// order Vector emits them.
func NumericFeatureNames() []string {
	names := make([]string, len(numericFeatureNames))
	copy(names, numericFeatureNames)
	return names
}

// NumericFeatureCount is the width of the numeric block.
func NumericFeatureCount() int {
	return len(numericFeatureNames)
}

// Vector returns the numeric features as a dense row, ordered to match
// NumericFeatureNames.
func (r *Record) Vector() []float64 {
	return []float64{
		r.Amount,
		r.AmountAbs,
		r.AmountLog,
		r.IsIncome,
		r.IsRoundAmount,
		r.AmountMagnitude,
		r.DayOfMonth,
		r.DayOfWeek,
		r.Month,
		r.IsWeekend,
		r.IsMonthStart,
		r.IsMonthEnd,
		r.IsHolidaySeason,
		r.MerchantLength,
		r.MerchantWordCount,
		r.IsDirectDebit,
		r.IsStandingOrder,
		r.IsCardPayment,
		r.IsOnline,
		r.IsRecurring,
		r.IsSupermarket,
		r.IsGasStation,
		r.IsRestaurant,
		r.IsTransport,
		r.IsTech,
		r.IsEUR,
	}
}

// Keyword groups for coarse merchant-category and payment-channel flags.
var (
	supermarketKeywords = []string{"edeka", "rewe", "aldi", "lidl", "kaufland", "netto"}
	gasStationKeywords  = []string{"shell", "esso", "aral", "bp", "total", "tankstelle"}
	restaurantKeywords  = []string{"mcdonald", "burger", "pizza", "restaurant", "cafe"}
	transportKeywords   = []string{"deutsche bahn", "db ", "bvg", "uber", "taxi"}
	techKeywords        = []string{"amazon", "apple", "google", "microsoft", "netflix"}
	onlineKeywords      = []string{"online", "internet", "paypal", "amazon"}
	recurringKeywords   = []string{"dauerauftrag", "standing order", "subscription"}
)

// Extract derives the feature record for one transaction. It is
// deterministic: identical input always yields an identical record.
func Extract(txn model.Transaction) Record {
	cleanMerchant := CleanMerchant(txn.Name)
	merchantLower := strings.ToLower(cleanMerchant)
	purposeLower := strings.ToLower(txn.Purpose)
	amountAbs := math.Abs(txn.Amount)

	// Monday-based weekday, matching the rest of the temporal features.
	dayOfWeek := (int(txn.Date.Weekday()) + 6) % 7
	month := int(txn.Date.Month())
	day := txn.Date.Day()

	wordCount := 0
	if cleanMerchant != "" {
		wordCount = len(strings.Fields(cleanMerchant))
	}

	return Record{
		CleanMerchant: cleanMerchant,
		CombinedText:  PreprocessText(txn.Name + " " + txn.Purpose),

		Amount:            txn.Amount,
		AmountAbs:         amountAbs,
		AmountLog:         math.Log1p(amountAbs),
		IsIncome:          boolFeature(txn.Amount > 0),
		IsRoundAmount:     boolFeature(math.Mod(amountAbs, 10) == 0),
		AmountMagnitude:   float64(amountMagnitude(amountAbs)),
		DayOfMonth:        float64(day),
		DayOfWeek:         float64(dayOfWeek),
		Month:             float64(month),
		IsWeekend:         boolFeature(dayOfWeek >= 5),
		IsMonthStart:      boolFeature(day <= 5),
		IsMonthEnd:        boolFeature(day >= 25),
		IsHolidaySeason:   boolFeature(month == 11 || month == 12 || month == 1),
		MerchantLength:    float64(len(cleanMerchant)),
		MerchantWordCount: float64(wordCount),
		IsDirectDebit:     boolFeature(strings.Contains(purposeLower, "lastschrift")),
		IsStandingOrder:   boolFeature(strings.Contains(purposeLower, "dauerauftrag")),
		IsCardPayment:     boolFeature(strings.Contains(purposeLower, "karte")),
		IsOnline:          containsAnyFeature(purposeLower, onlineKeywords),
		IsRecurring:       containsAnyFeature(purposeLower, recurringKeywords),
		IsSupermarket:     containsAnyFeature(merchantLower, supermarketKeywords),
		IsGasStation:      containsAnyFeature(merchantLower, gasStationKeywords),
		IsRestaurant:      containsAnyFeature(merchantLower, restaurantKeywords),
		IsTransport:       containsAnyFeature(merchantLower, transportKeywords),
		IsTech:            containsAnyFeature(merchantLower, techKeywords),
		IsEUR:             boolFeature(txn.Currency == "EUR"),
	}
}

// ExtractBatch applies Extract element-wise, preserving order.
func ExtractBatch(txns []model.Transaction) []Record {
	records := make([]Record, len(txns))
	for i, txn := range txns {
		records[i] = Extract(txn)
	}
	return records
}

// amountMagnitude buckets an absolute amount into 0 (small) through 4 (huge).
func amountMagnitude(amount float64) int {
	switch {
	case amount < 10:
		return 0
	case amount < 50:
		return 1
	case amount < 200:
		return 2
	case amount < 1000:
		return 3
	default:
		return 4
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func containsAnyFeature(s string, keywords []string) float64 {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return 1
		}
	}
	return 0
}
